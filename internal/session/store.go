package session

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"incidentrelay/internal/metrics"
	"incidentrelay/internal/oauth"
	"incidentrelay/pkg/logging"
	pkgoauth "incidentrelay/pkg/oauth"
)

// session holds the mutable state of one login. All fields are guarded by mu.
type session struct {
	mu sync.Mutex

	id       string
	state    State
	verifier string

	accessToken  string
	refreshToken string
	expiresAt    time.Time

	createdAt       time.Time
	authenticatedAt time.Time
	lastUsed        time.Time

	// exchanging is set while an authorization code exchange is in flight.
	exchanging bool

	// usedCodes holds hashes of every code submitted for this session.
	usedCodes map[[sha256.Size]byte]struct{}
}

func (s *session) view() View {
	return View{
		ID:              s.id,
		State:           s.state,
		HasAccessToken:  s.accessToken != "",
		HasRefreshToken: s.refreshToken != "",
		ExpiresAt:       s.expiresAt,
		CreatedAt:       s.createdAt,
		AuthenticatedAt: s.authenticatedAt,
		LastUsed:        s.lastUsed,
	}
}

func (s *session) setTokens(tok *pkgoauth.Token) {
	s.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	s.expiresAt = tok.ExpiresAt
}

func (s *session) clearSecrets() {
	s.verifier = ""
	s.accessToken = ""
	s.refreshToken = ""
	s.expiresAt = time.Time{}
}

// Store maps opaque session ids to OAuth state.
type Store struct {
	exchanger oauth.Exchanger
	opts      Options
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session

	hookMu   sync.RWMutex
	onChange StateChangeFunc

	refreshGroup singleflight.Group

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewStore creates a session store that exchanges codes through exchanger.
// If opts.CleanupInterval is positive a background loop collects stale sessions
// until Stop is called.
func NewStore(exchanger oauth.Exchanger, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	st := &Store{
		exchanger:   exchanger,
		opts:        opts,
		now:         now,
		sessions:    make(map[string]*session),
		stopCleanup: make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		go st.cleanupLoop(opts.CleanupInterval)
	}

	return st
}

// SetOnStateChange installs the state transition hook.
func (st *Store) SetOnStateChange(fn StateChangeFunc) {
	st.hookMu.Lock()
	st.onChange = fn
	st.hookMu.Unlock()
}

func (st *Store) notify(id string, from, to State) {
	if from == to {
		return
	}
	logging.Debug("Session", "Session %s: %s -> %s", logging.TruncateSessionID(id), from, to)

	st.hookMu.RLock()
	fn := st.onChange
	st.hookMu.RUnlock()
	if fn != nil {
		fn(id, from, to)
	}
}

func (st *Store) lookup(id string) (*session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// CreatePending starts a new login. It returns the session id, which doubles as
// the OAuth state parameter, and the PKCE challenge for the authorization URL.
// The verifier stays in the store.
func (st *Store) CreatePending() (id, challenge string, err error) {
	pkce, err := pkgoauth.GeneratePKCE()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate PKCE pair: %w", err)
	}
	id, err = pkgoauth.GenerateState()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate session id: %w", err)
	}

	now := st.now()
	s := &session{
		id:        id,
		state:     StatePending,
		verifier:  pkce.CodeVerifier,
		createdAt: now,
		lastUsed:  now,
		usedCodes: make(map[[sha256.Size]byte]struct{}),
	}

	st.mu.Lock()
	st.sessions[id] = s
	st.mu.Unlock()

	logging.Audit(logging.AuditEvent{Action: "login_start", Outcome: "pending", SessionID: id})
	return id, pkce.CodeChallenge, nil
}

// Exchange redeems an authorization code for the session. Exactly one caller
// reaches the provider per session at a time; a code is only ever submitted once.
// On provider failure the session stays PENDING and the code is burned.
func (st *Store) Exchange(ctx context.Context, id, code string) (View, error) {
	s, err := st.lookup(id)
	if err != nil {
		return View{}, err
	}

	codeHash := sha256.Sum256([]byte(code))

	s.mu.Lock()
	if _, used := s.usedCodes[codeHash]; used || s.state == StateAuthenticated {
		s.mu.Unlock()
		logging.Audit(logging.AuditEvent{Action: "code_exchange", Outcome: "replay", SessionID: id})
		return View{}, ErrCodeAlreadyUsed
	}
	if s.state != StatePending || s.exchanging {
		state := s.state
		s.mu.Unlock()
		return View{}, fmt.Errorf("%w: exchange not allowed in state %s", ErrInvalidState, state)
	}
	s.usedCodes[codeHash] = struct{}{}
	s.exchanging = true
	verifier := s.verifier
	s.mu.Unlock()

	tok, exchangeErr := st.exchanger.ExchangeCode(ctx, code, verifier)

	s.mu.Lock()
	s.exchanging = false
	if s.state == StateRevoked {
		s.mu.Unlock()
		return View{}, ErrUnknownSession
	}
	if exchangeErr != nil {
		s.mu.Unlock()
		logging.Audit(logging.AuditEvent{Action: "code_exchange", Outcome: "failure", SessionID: id})
		return View{}, exchangeErr
	}

	now := st.now()
	s.setTokens(tok)
	s.verifier = ""
	s.state = StateAuthenticated
	s.authenticatedAt = now
	s.lastUsed = now
	v := s.view()
	s.mu.Unlock()

	logging.Audit(logging.AuditEvent{Action: "code_exchange", Outcome: "success", SessionID: id})
	st.notify(id, StatePending, StateAuthenticated)
	return v, nil
}

// Get returns a view of the session.
func (st *Store) Get(id string) (View, error) {
	s, err := st.lookup(id)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// Exists reports whether a session with the given id is known.
func (st *Store) Exists(id string) bool {
	_, err := st.lookup(id)
	return err == nil
}

// AccessToken returns the bearer token of an AUTHENTICATED session.
func (st *Store) AccessToken(id string) (string, error) {
	s, err := st.lookup(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAuthenticated:
		s.lastUsed = st.now()
		return s.accessToken, nil
	case StateExpired:
		return "", ErrSessionExpired
	default:
		return "", fmt.Errorf("%w: no access token in state %s", ErrInvalidState, s.state)
	}
}

// Refresh replaces the session's tokens using its refresh token. Concurrent
// calls for the same session share one provider call, which runs detached from
// ctx and is bounded by Options.RefreshTimeout. If ctx ends first, Refresh
// returns ctx.Err() and the shared call completes on its own. If the provider
// rejects the refresh the session becomes EXPIRED and the returned error wraps
// ErrSessionExpired. A refresh that times out leaves the session unchanged.
func (st *Store) Refresh(ctx context.Context, id string) (View, error) {
	ch := st.refreshGroup.DoChan(id, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), st.refreshTimeout())
		defer cancel()
		return st.refresh(rctx, id)
	})

	select {
	case <-ctx.Done():
		logging.Debug("Session", "Caller left refresh for session=%s: %v", logging.TruncateSessionID(id), ctx.Err())
		return View{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			logging.Debug("Session", "Joined in-flight refresh for session=%s", logging.TruncateSessionID(id))
		}
		if res.Err != nil {
			return View{}, res.Err
		}
		return res.Val.(View), nil
	}
}

func (st *Store) refreshTimeout() time.Duration {
	if st.opts.RefreshTimeout > 0 {
		return st.opts.RefreshTimeout
	}
	return DefaultRefreshTimeout
}

func (st *Store) refresh(ctx context.Context, id string) (View, error) {
	s, err := st.lookup(id)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	switch s.state {
	case StateAuthenticated:
	case StateExpired:
		s.mu.Unlock()
		return View{}, ErrSessionExpired
	default:
		state := s.state
		s.mu.Unlock()
		return View{}, fmt.Errorf("%w: refresh not allowed in state %s", ErrInvalidState, state)
	}
	refreshToken := s.refreshToken
	s.mu.Unlock()

	if refreshToken == "" {
		st.Expire(id)
		return View{}, fmt.Errorf("%w: no refresh token", ErrSessionExpired)
	}

	tok, refreshErr := st.exchanger.Refresh(ctx, refreshToken)

	s.mu.Lock()
	if s.state != StateAuthenticated {
		state := s.state
		s.mu.Unlock()
		if state == StateRevoked {
			return View{}, ErrUnknownSession
		}
		return View{}, ErrSessionExpired
	}
	if refreshErr != nil && IsInterrupted(refreshErr) {
		s.mu.Unlock()
		logging.Warn("Session", "Token refresh for session=%s did not complete: %v", logging.TruncateSessionID(id), refreshErr)
		return View{}, fmt.Errorf("token refresh interrupted: %w", refreshErr)
	}
	if refreshErr != nil {
		s.mu.Unlock()
		st.Expire(id)
		logging.Audit(logging.AuditEvent{Action: "token_refresh", Outcome: "failure", SessionID: id})
		return View{}, fmt.Errorf("%w: %w", ErrSessionExpired, refreshErr)
	}
	s.setTokens(tok)
	s.lastUsed = st.now()
	v := s.view()
	s.mu.Unlock()

	logging.Audit(logging.AuditEvent{Action: "token_refresh", Outcome: "success", SessionID: id})
	return v, nil
}

// Expire moves an AUTHENTICATED session to EXPIRED and discards its tokens.
func (st *Store) Expire(id string) {
	s, err := st.lookup(id)
	if err != nil {
		return
	}

	s.mu.Lock()
	from := s.state
	if from != StateAuthenticated {
		s.mu.Unlock()
		return
	}
	s.state = StateExpired
	s.clearSecrets()
	s.mu.Unlock()

	st.notify(id, from, StateExpired)
}

// Revoke removes the session and all of its state. Revoking an unknown session
// returns ErrUnknownSession and changes nothing, so repeated calls are harmless.
func (st *Store) Revoke(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	from := st.markRevoked(s)
	logging.Audit(logging.AuditEvent{Action: "logout", Outcome: "success", SessionID: id})
	st.notify(id, from, StateRevoked)
	return nil
}

func (st *Store) markRevoked(s *session) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := s.state
	s.state = StateRevoked
	s.clearSecrets()
	return from
}

// Len returns the number of sessions in the store.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Counts returns the number of sessions per state.
func (st *Store) Counts() map[State]int {
	st.mu.RLock()
	all := make([]*session, 0, len(st.sessions))
	for _, s := range st.sessions {
		all = append(all, s)
	}
	st.mu.RUnlock()

	counts := make(map[State]int)
	for _, s := range all {
		s.mu.Lock()
		counts[s.state]++
		s.mu.Unlock()
	}
	return counts
}

// Stop stops the background cleanup goroutine.
func (st *Store) Stop() {
	st.stopOnce.Do(func() {
		close(st.stopCleanup)
	})
}

// cleanupLoop periodically removes stale sessions from the store.
func (st *Store) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			st.Cleanup()
		case <-st.stopCleanup:
			return
		}
	}
}

// Cleanup removes PENDING sessions older than PendingTTL and AUTHENTICATED or
// EXPIRED sessions unused for longer than IdleTTL. Sessions with an exchange in
// flight are left alone. It returns the number of sessions removed.
func (st *Store) Cleanup() int {
	now := st.now()

	type removal struct {
		id   string
		from State
	}
	var removed []removal

	st.mu.Lock()
	for id, s := range st.sessions {
		s.mu.Lock()
		stale := false
		switch s.state {
		case StatePending:
			stale = !s.exchanging && st.opts.PendingTTL > 0 && now.Sub(s.createdAt) > st.opts.PendingTTL
		case StateAuthenticated, StateExpired:
			stale = st.opts.IdleTTL > 0 && now.Sub(s.lastUsed) > st.opts.IdleTTL
		}
		if stale {
			removed = append(removed, removal{id: id, from: s.state})
			s.state = StateRevoked
			s.clearSecrets()
			delete(st.sessions, id)
		}
		s.mu.Unlock()
	}
	st.mu.Unlock()

	for _, r := range removed {
		st.notify(r.id, r.from, StateRevoked)
	}
	if len(removed) > 0 {
		metrics.SessionsCollectedTotal.Add(float64(len(removed)))
		logging.Debug("Session", "Cleaned up %d stale sessions", len(removed))
	}

	counts := st.Counts()
	for _, state := range []State{StatePending, StateAuthenticated, StateExpired} {
		metrics.Sessions.WithLabelValues(state.String()).Set(float64(counts[state]))
	}

	return len(removed)
}
