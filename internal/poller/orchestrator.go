package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"incidentrelay/internal/hub"
	"incidentrelay/internal/incident"
	"incidentrelay/internal/metrics"
	"incidentrelay/internal/session"
	"incidentrelay/pkg/logging"
)

// DefaultInterval is the poll interval when none is configured.
const DefaultInterval = 60 * time.Second

// SessionStore is the part of the session store the orchestrator needs.
type SessionStore interface {
	AccessToken(id string) (string, error)
	Refresh(ctx context.Context, id string) (session.View, error)
	Expire(id string)
}

// Fetcher lists incidents for a bearer token.
type Fetcher interface {
	Fetch(ctx context.Context, accessToken string) ([]incident.Record, error)
}

// Broadcaster fans events out to live connections.
type Broadcaster interface {
	Broadcast(ev hub.Event) hub.Result
}

// Options configures an Orchestrator.
type Options struct {
	// Interval between polls of one session.
	Interval time.Duration

	// Immediate runs the first cycle as soon as a session is watched instead of
	// waiting one interval.
	Immediate bool
}

// Orchestrator owns one poll loop per watched session.
type Orchestrator struct {
	store       SessionStore
	fetcher     Fetcher
	broadcaster Broadcaster
	opts        Options
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	watches   map[string]context.CancelFunc
	snapshots map[string]*incident.Snapshot
}

// New creates an orchestrator. Call Stop to end all poll loops.
func New(store SessionStore, fetcher Fetcher, broadcaster Broadcaster, opts Options) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		store:       store,
		fetcher:     fetcher,
		broadcaster: broadcaster,
		opts:        opts,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		watches:     make(map[string]context.CancelFunc),
		snapshots:   make(map[string]*incident.Snapshot),
	}
}

// Watch starts polling for the session. Watching an already watched session is a no-op.
func (o *Orchestrator) Watch(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx.Err() != nil {
		return
	}
	if _, ok := o.watches[sessionID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(o.ctx)
	o.watches[sessionID] = cancel

	o.wg.Add(1)
	go o.loop(ctx, sessionID)

	logging.Info("Poller", "Started polling for session=%s every %s",
		logging.TruncateSessionID(sessionID), o.opts.Interval)
}

// Unwatch stops polling for the session and drops its cached snapshot.
// It does not wait for an in-flight cycle to finish.
func (o *Orchestrator) Unwatch(sessionID string) {
	o.mu.Lock()
	cancel, ok := o.watches[sessionID]
	if ok {
		cancel()
	}
	delete(o.watches, sessionID)
	delete(o.snapshots, sessionID)
	o.mu.Unlock()

	if ok {
		logging.Info("Poller", "Stopped polling for session=%s", logging.TruncateSessionID(sessionID))
	}
}

// Watching reports whether a poll loop is running for the session.
func (o *Orchestrator) Watching(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.watches[sessionID]
	return ok
}

// Snapshot returns the last snapshot produced for the session, or nil.
func (o *Orchestrator) Snapshot(sessionID string) *incident.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshots[sessionID]
}

// HandleStateChange starts polling when a session becomes AUTHENTICATED and
// stops it when the session expires or is revoked. It matches session.StateChangeFunc.
func (o *Orchestrator) HandleStateChange(id string, _, to session.State) {
	switch to {
	case session.StateAuthenticated:
		o.Watch(id)
	case session.StateExpired, session.StateRevoked:
		o.Unwatch(id)
	}
}

// Stop ends every poll loop and waits for them to exit.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()

	o.mu.Lock()
	o.watches = make(map[string]context.CancelFunc)
	o.mu.Unlock()
}

func (o *Orchestrator) loop(ctx context.Context, sessionID string) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.opts.Interval)
	defer ticker.Stop()

	if o.opts.Immediate && !o.tick(ctx, sessionID) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !o.tick(ctx, sessionID) {
				return
			}
		}
	}
}

// tick runs one scheduled cycle and reports whether polling should continue.
func (o *Orchestrator) tick(ctx context.Context, sessionID string) bool {
	_, err := o.Refresh(ctx, sessionID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, session.ErrSessionExpired), errors.Is(err, session.ErrUnknownSession):
		o.Unwatch(sessionID)
		return false
	case ctx.Err() != nil:
		return false
	default:
		// Upstream outages degrade the feed but keep the loop alive.
		logging.Warn("Poller", "Poll cycle failed for session=%s: %v", logging.TruncateSessionID(sessionID), err)
		return true
	}
}

// Refresh runs one fetch/broadcast cycle for the session on demand and returns
// the new snapshot. Expired sessions are rejected without calling the upstream.
func (o *Orchestrator) Refresh(ctx context.Context, sessionID string) (*incident.Snapshot, error) {
	records, err := o.fetchWithRefresh(ctx, sessionID)
	if err != nil {
		result := metrics.ResultFailure
		if errors.Is(err, session.ErrSessionExpired) {
			result = metrics.ResultExpired
		}
		metrics.PollCyclesTotal.WithLabelValues(result).Inc()
		return nil, err
	}

	snap := incident.NewSnapshot(records, o.now())

	o.mu.Lock()
	prev := o.snapshots[sessionID]
	if ctx.Err() == nil {
		o.snapshots[sessionID] = snap
	}
	o.mu.Unlock()

	res := o.broadcaster.Broadcast(hub.UpdateIncidents(snap.Records()))

	if snap.Len() != prev.Len() {
		o.broadcaster.Broadcast(hub.Notify(hub.Notification{
			Title:    "ServiceNow",
			Body:     fmt.Sprintf("Updated Incidents: %d", snap.Len()),
			Count:    snap.Len(),
			Previous: prev.Len(),
		}))
	}

	metrics.PollCyclesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	logging.Debug("Poller", "Cycle for session=%s: %d incidents, delivered to %d connections",
		logging.TruncateSessionID(sessionID), snap.Len(), res.Delivered)
	return snap, nil
}

// fetchWithRefresh fetches incidents, refreshing the token and retrying once on 401.
func (o *Orchestrator) fetchWithRefresh(ctx context.Context, sessionID string) ([]incident.Record, error) {
	token, err := o.store.AccessToken(sessionID)
	if err != nil {
		return nil, err
	}

	records, err := o.fetcher.Fetch(ctx, token)
	if !incident.IsUnauthorized(err) {
		return records, err
	}

	logging.Debug("Poller", "Upstream rejected token for session=%s, refreshing", logging.TruncateSessionID(sessionID))
	if _, err := o.store.Refresh(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrUnknownSession) || session.IsInterrupted(err) {
			return nil, err
		}
		o.store.Expire(sessionID)
		if errors.Is(err, session.ErrSessionExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", session.ErrSessionExpired, err)
	}

	token, err = o.store.AccessToken(sessionID)
	if err != nil {
		return nil, err
	}

	records, err = o.fetcher.Fetch(ctx, token)
	if incident.IsUnauthorized(err) {
		o.store.Expire(sessionID)
		return nil, fmt.Errorf("%w: upstream rejected refreshed token", session.ErrSessionExpired)
	}
	return records, err
}
