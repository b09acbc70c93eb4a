package session

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a session.
type State int

const (
	StatePending State = iota
	StateAuthenticated
	StateExpired
	StateRevoked
)

// String returns the state name as used in logs and JSON.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateExpired:
		return "EXPIRED"
	case StateRevoked:
		return "REVOKED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// View is a read-only copy of a session. It never contains the PKCE verifier
// or token values.
type View struct {
	ID              string    `json:"sessionId"`
	State           State     `json:"state"`
	HasAccessToken  bool      `json:"hasAccessToken"`
	HasRefreshToken bool      `json:"hasRefreshToken"`
	ExpiresAt       time.Time `json:"expiresAt,omitzero"`
	CreatedAt       time.Time `json:"createdAt"`
	AuthenticatedAt time.Time `json:"authenticatedAt,omitzero"`
	LastUsed        time.Time `json:"lastUsed"`
}

// StateChangeFunc is invoked after a session changes state, outside of any store lock.
type StateChangeFunc func(id string, from, to State)

// Options configures a Store.
type Options struct {
	// PendingTTL bounds how long a login may stay PENDING.
	PendingTTL time.Duration

	// IdleTTL bounds how long an AUTHENTICATED or EXPIRED session may go unused.
	IdleTTL time.Duration

	// CleanupInterval is how often expired sessions are collected. Zero disables the loop.
	CleanupInterval time.Duration

	// RefreshTimeout bounds one provider refresh call. It applies regardless of
	// the caller's context, which only limits how long the caller waits.
	RefreshTimeout time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultRefreshTimeout is used when Options.RefreshTimeout is not positive.
const DefaultRefreshTimeout = 30 * time.Second

// DefaultOptions returns the store defaults.
func DefaultOptions() Options {
	return Options{
		PendingTTL:      10 * time.Minute,
		IdleTTL:         24 * time.Hour,
		CleanupInterval: time.Minute,
		RefreshTimeout:  DefaultRefreshTimeout,
	}
}
