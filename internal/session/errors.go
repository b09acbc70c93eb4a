package session

import (
	"context"
	"errors"
)

var (
	// ErrUnknownSession is returned when no session exists for the given id.
	ErrUnknownSession = errors.New("unknown session")

	// ErrInvalidState is returned when an operation is not allowed in the
	// session's current state, or another exchange for it is in flight.
	ErrInvalidState = errors.New("invalid session state")

	// ErrCodeAlreadyUsed is returned when an authorization code is replayed or
	// the session has already been authenticated.
	ErrCodeAlreadyUsed = errors.New("authorization code already used")

	// ErrSessionExpired is returned for sessions whose tokens could not be refreshed.
	// The user must log in again.
	ErrSessionExpired = errors.New("session expired")
)

// IsInterrupted reports whether err comes from a cancelled or timed out
// context rather than from the provider. Such failures leave sessions unchanged.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
