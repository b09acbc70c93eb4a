package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"incidentrelay/internal/hub"
	"incidentrelay/internal/incident"
	"incidentrelay/pkg/logging"
)

// ConnState is the state of the watcher's connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String returns a human-readable representation of the state.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

const (
	DefaultInitialDelay = 5 * time.Second
	DefaultMaxDelay     = time.Minute
	DefaultReadTimeout  = 90 * time.Second
	controlWriteWait    = 5 * time.Second
)

// ErrMaxAttempts is returned by Run when reconnection gives up.
var ErrMaxAttempts = errors.New("maximum reconnection attempts reached")

// Message is one event received from the relay.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Records decodes an update-incidents payload.
func (m Message) Records() ([]incident.Record, error) {
	if m.Type != hub.EventUpdateIncidents {
		return nil, fmt.Errorf("message type %q does not carry incidents", m.Type)
	}
	var records []incident.Record
	if err := json.Unmarshal(m.Data, &records); err != nil {
		return nil, fmt.Errorf("invalid incidents payload: %w", err)
	}
	return records, nil
}

// Notification decodes a notification payload.
func (m Message) Notification() (hub.Notification, error) {
	var n hub.Notification
	if m.Type != hub.EventNotification {
		return n, fmt.Errorf("message type %q is not a notification", m.Type)
	}
	if err := json.Unmarshal(m.Data, &n); err != nil {
		return n, fmt.Errorf("invalid notification payload: %w", err)
	}
	return n, nil
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// URL is the relay's WebSocket endpoint, e.g. wss://localhost:4000/ws.
	URL string

	// InitialDelay is the first reconnection delay; later delays grow
	// exponentially up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// MaxAttempts bounds consecutive failed dials; zero retries forever.
	MaxAttempts int

	// ReadTimeout closes a connection that has been silent for this long.
	// The relay pings well within the default.
	ReadTimeout time.Duration

	// InsecureTLS skips certificate verification.
	InsecureTLS bool

	// OnState is called on every state change.
	OnState func(ConnState)

	// OnMessage is called for every message received.
	OnMessage func(Message)
}

// Watcher maintains a WebSocket connection to the relay.
type Watcher struct {
	cfg    WatcherConfig
	dialer *websocket.Dialer

	mu    sync.RWMutex
	state ConnState
}

// NewWatcher creates a watcher. Run starts it.
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	dialer := *websocket.DefaultDialer
	if cfg.InsecureTLS {
		// #nosec G402 -- opt-in for local development relays
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Watcher{cfg: cfg, dialer: &dialer}
}

// WebSocketURL derives the /ws endpoint from a relay base URL.
func WebSocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported relay URL scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

// State returns the current connection state.
func (w *Watcher) State() ConnState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Watcher) setState(s ConnState) {
	w.mu.Lock()
	changed := w.state != s
	w.state = s
	w.mu.Unlock()

	if changed {
		logging.Debug("Watch", "Connection state: %s", s)
		if w.cfg.OnState != nil {
			w.cfg.OnState(s)
		}
	}
}

func (w *Watcher) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.InitialDelay
	b.MaxInterval = w.cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// Run connects and keeps reconnecting until ctx is cancelled, in which case it
// returns nil, or until MaxAttempts consecutive dials fail.
func (w *Watcher) Run(ctx context.Context) error {
	b := w.newBackOff()
	failures := 0

	defer w.setState(StateDisconnected)

	for {
		w.setState(StateConnecting)
		conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			w.setState(StateDisconnected)
			if w.cfg.MaxAttempts > 0 && failures >= w.cfg.MaxAttempts {
				return fmt.Errorf("%w (%d): %w", ErrMaxAttempts, failures, err)
			}

			delay := b.NextBackOff()
			logging.Warn("Watch", "Connection to %s failed (attempt %d), retrying in %s: %v",
				w.cfg.URL, failures, delay.Round(time.Millisecond), err)
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		failures = 0
		b.Reset()
		w.setState(StateConnected)
		logging.Info("Watch", "Connected to %s", w.cfg.URL)

		err = w.readLoop(ctx, conn)
		w.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		logging.Warn("Watch", "Disconnected from relay: %v", err)

		if !sleep(ctx, b.NextBackOff()) {
			return nil
		}
	}
}

func (w *Watcher) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(controlWriteWait))
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	extend := func() { _ = conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout)) }
	extend()
	conn.SetPingHandler(func(data string) error {
		extend()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteWait))
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		extend()
		if w.cfg.OnMessage != nil {
			w.cfg.OnMessage(msg)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
