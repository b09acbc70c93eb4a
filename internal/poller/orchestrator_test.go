package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentrelay/internal/hub"
	"incidentrelay/internal/incident"
	"incidentrelay/internal/session"
	pkgoauth "incidentrelay/pkg/oauth"
)

type stubExchanger struct {
	refreshErr error
	// block, when set, holds Refresh until it is closed or ctx ends.
	block chan struct{}
}

func (s *stubExchanger) ExchangeCode(_ context.Context, code, _ string) (*pkgoauth.Token, error) {
	return &pkgoauth.Token{AccessToken: "access-" + code, RefreshToken: "refresh-" + code}, nil
}

func (s *stubExchanger) Refresh(ctx context.Context, _ string) (*pkgoauth.Token, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return &pkgoauth.Token{AccessToken: "access-refreshed"}, nil
}

type stubFetcher struct {
	mu     sync.Mutex
	calls  []string
	result func(token string) ([]incident.Record, error)
}

func (f *stubFetcher) Fetch(_ context.Context, token string) ([]incident.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, token)
	fn := f.result
	f.mu.Unlock()
	return fn(token)
}

func (f *stubFetcher) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []hub.Event
}

func (b *recordingBroadcaster) Broadcast(ev hub.Event) hub.Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return hub.Result{Delivered: 1}
}

func (b *recordingBroadcaster) ofType(eventType string) []hub.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []hub.Event
	for _, ev := range b.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func records(n int) []incident.Record {
	out := make([]incident.Record, n)
	for i := range out {
		out[i] = incident.Record{SysID: string(rune('a' + i))}
	}
	return out
}

type fixture struct {
	store       *session.Store
	exchanger   *stubExchanger
	fetcher     *stubFetcher
	broadcaster *recordingBroadcaster
	orch        *Orchestrator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		exchanger:   &stubExchanger{},
		fetcher:     &stubFetcher{result: func(string) ([]incident.Record, error) { return records(1), nil }},
		broadcaster: &recordingBroadcaster{},
	}
	f.store = session.NewStore(f.exchanger, session.Options{})
	f.orch = New(f.store, f.fetcher, f.broadcaster, opts)
	t.Cleanup(func() {
		f.orch.Stop()
		f.store.Stop()
	})
	return f
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	id, _, err := f.store.CreatePending()
	require.NoError(t, err)
	_, err = f.store.Exchange(context.Background(), id, "validcode")
	require.NoError(t, err)
	return id
}

func TestRefresh_BroadcastsSnapshot(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.login(t)

	snap, err := f.orch.Refresh(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, []string{"access-validcode"}, f.fetcher.tokens())

	updates := f.broadcaster.ofType(hub.EventUpdateIncidents)
	require.Len(t, updates, 1)
	assert.Equal(t, snap.Records(), updates[0].Data)
	assert.Same(t, snap, f.orch.Snapshot(id))
}

func TestRefresh_UnauthorizedThenRefreshSucceeds(t *testing.T) {
	f := newFixture(t, Options{})
	f.fetcher.result = func(token string) ([]incident.Record, error) {
		if token == "access-validcode" {
			return nil, &incident.FetchError{Kind: incident.Unauthorized, StatusCode: 401}
		}
		return records(2), nil
	}
	id := f.login(t)

	var transitions []session.State
	f.store.SetOnStateChange(func(_ string, _, to session.State) { transitions = append(transitions, to) })

	snap, err := f.orch.Refresh(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
	assert.Equal(t, []string{"access-validcode", "access-refreshed"}, f.fetcher.tokens())

	v, err := f.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateAuthenticated, v.State)
	assert.Empty(t, transitions, "session must stay AUTHENTICATED throughout")
}

func TestRefresh_RefreshFailureExpiresSession(t *testing.T) {
	f := newFixture(t, Options{})
	f.exchanger.refreshErr = &pkgoauth.ProviderError{Op: "refresh", StatusCode: 400, Code: "invalid_grant"}
	f.fetcher.result = func(string) ([]incident.Record, error) {
		return nil, &incident.FetchError{Kind: incident.Unauthorized, StatusCode: 401}
	}
	id := f.login(t)

	_, err := f.orch.Refresh(context.Background(), id)
	assert.ErrorIs(t, err, session.ErrSessionExpired)

	v, err := f.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateExpired, v.State)

	calls := len(f.fetcher.tokens())
	for i := 0; i < 3; i++ {
		_, err = f.orch.Refresh(context.Background(), id)
		assert.ErrorIs(t, err, session.ErrSessionExpired)
	}
	assert.Len(t, f.fetcher.tokens(), calls, "expired sessions must not reach the upstream")
	assert.Empty(t, f.broadcaster.ofType(hub.EventUpdateIncidents))
}

func TestRefresh_CancelledCallerKeepsSession(t *testing.T) {
	f := newFixture(t, Options{})
	f.exchanger.block = make(chan struct{})
	f.fetcher.result = func(token string) ([]incident.Record, error) {
		if token == "access-refreshed" {
			return records(1), nil
		}
		return nil, &incident.FetchError{Kind: incident.Unauthorized, StatusCode: 401}
	}
	id := f.login(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.orch.Refresh(ctx, id)
	require.Error(t, err)
	assert.True(t, session.IsInterrupted(err))
	assert.NotErrorIs(t, err, session.ErrSessionExpired)

	v, err := f.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateAuthenticated, v.State)
	assert.True(t, v.HasRefreshToken)

	close(f.exchanger.block)
	assert.Eventually(t, func() bool {
		token, err := f.store.AccessToken(id)
		return err == nil && token == "access-refreshed"
	}, time.Second, 5*time.Millisecond)

	snap, err := f.orch.Refresh(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
}

func TestRefresh_RepeatedUnauthorizedExpiresSession(t *testing.T) {
	f := newFixture(t, Options{})
	f.fetcher.result = func(string) ([]incident.Record, error) {
		return nil, &incident.FetchError{Kind: incident.Unauthorized, StatusCode: 401}
	}
	id := f.login(t)

	_, err := f.orch.Refresh(context.Background(), id)
	assert.ErrorIs(t, err, session.ErrSessionExpired)
	assert.Len(t, f.fetcher.tokens(), 2, "exactly one retry after refresh")

	v, err := f.store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateExpired, v.State)
}

func TestRefresh_UpstreamErrorIsReturned(t *testing.T) {
	f := newFixture(t, Options{})
	f.fetcher.result = func(string) ([]incident.Record, error) {
		return nil, &incident.FetchError{Kind: incident.Upstream, StatusCode: 503}
	}
	id := f.login(t)

	_, err := f.orch.Refresh(context.Background(), id)
	var fe *incident.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, incident.Upstream, fe.Kind)
	assert.Len(t, f.fetcher.tokens(), 1)

	v, _ := f.store.Get(id)
	assert.Equal(t, session.StateAuthenticated, v.State)
}

func TestRefresh_NotificationOnlyWhenCountChanges(t *testing.T) {
	f := newFixture(t, Options{})
	var count atomic.Int32
	count.Store(2)
	f.fetcher.result = func(string) ([]incident.Record, error) { return records(int(count.Load())), nil }
	id := f.login(t)

	for _, n := range []int32{2, 2, 3, 3, 0} {
		count.Store(n)
		_, err := f.orch.Refresh(context.Background(), id)
		require.NoError(t, err)
	}

	assert.Len(t, f.broadcaster.ofType(hub.EventUpdateIncidents), 5, "snapshots are broadcast unconditionally")

	notes := f.broadcaster.ofType(hub.EventNotification)
	require.Len(t, notes, 3)
	assert.Equal(t, hub.Notification{Title: "ServiceNow", Body: "Updated Incidents: 2", Count: 2, Previous: 0}, notes[0].Data)
	assert.Equal(t, hub.Notification{Title: "ServiceNow", Body: "Updated Incidents: 3", Count: 3, Previous: 2}, notes[1].Data)
	assert.Equal(t, hub.Notification{Title: "ServiceNow", Body: "Updated Incidents: 0", Count: 0, Previous: 3}, notes[2].Data)
}

func TestRefresh_UnknownAndPendingSessions(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.orch.Refresh(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrUnknownSession)

	id, _, err := f.store.CreatePending()
	require.NoError(t, err)
	_, err = f.orch.Refresh(context.Background(), id)
	assert.ErrorIs(t, err, session.ErrInvalidState)
	assert.Empty(t, f.fetcher.tokens())
}

func TestWatch_PollsOnInterval(t *testing.T) {
	f := newFixture(t, Options{Interval: 10 * time.Millisecond, Immediate: true})
	id := f.login(t)

	f.orch.Watch(id)
	f.orch.Watch(id)
	assert.True(t, f.orch.Watching(id))

	require.Eventually(t, func() bool { return len(f.fetcher.tokens()) >= 3 }, 2*time.Second, 5*time.Millisecond)

	f.orch.Unwatch(id)
	assert.False(t, f.orch.Watching(id))
	assert.Nil(t, f.orch.Snapshot(id))
}

func TestWatch_StopsWhenSessionExpires(t *testing.T) {
	f := newFixture(t, Options{Interval: 10 * time.Millisecond, Immediate: true})
	f.exchanger.refreshErr = errors.New("refresh rejected")
	f.fetcher.result = func(string) ([]incident.Record, error) {
		return nil, &incident.FetchError{Kind: incident.Unauthorized, StatusCode: 401}
	}
	id := f.login(t)

	f.orch.Watch(id)
	require.Eventually(t, func() bool { return !f.orch.Watching(id) }, 2*time.Second, 5*time.Millisecond)

	calls := len(f.fetcher.tokens())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, f.fetcher.tokens(), calls, "polling must cease after expiry")
}

func TestWatch_UpstreamOutageKeepsPolling(t *testing.T) {
	f := newFixture(t, Options{Interval: 10 * time.Millisecond, Immediate: true})
	f.fetcher.result = func(string) ([]incident.Record, error) {
		return nil, &incident.FetchError{Kind: incident.Upstream, StatusCode: 502}
	}
	id := f.login(t)

	f.orch.Watch(id)
	require.Eventually(t, func() bool { return len(f.fetcher.tokens()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.orch.Watching(id))
}

func TestHandleStateChange(t *testing.T) {
	f := newFixture(t, Options{Interval: time.Hour})
	f.store.SetOnStateChange(f.orch.HandleStateChange)

	id := f.login(t)
	assert.True(t, f.orch.Watching(id), "authentication starts polling")

	require.NoError(t, f.store.Revoke(id))
	assert.False(t, f.orch.Watching(id), "revocation stops polling")

	id = f.login(t)
	f.store.Expire(id)
	assert.False(t, f.orch.Watching(id), "expiry stops polling")
}

func TestStop_PreventsNewWatches(t *testing.T) {
	f := newFixture(t, Options{Interval: time.Hour})
	id := f.login(t)

	f.orch.Watch(id)
	f.orch.Stop()
	assert.False(t, f.orch.Watching(id))

	f.orch.Watch(id)
	assert.False(t, f.orch.Watching(id))
}
