package incident

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies upstream failures.
type FetchErrorKind int

const (
	// Upstream covers non-2xx responses other than 401, network and decode failures.
	Upstream FetchErrorKind = iota
	// Unauthorized means the upstream rejected the bearer token (HTTP 401).
	Unauthorized
)

func (k FetchErrorKind) String() string {
	if k == Unauthorized {
		return "unauthorized"
	}
	return "upstream"
}

// FetchError is returned by Fetcher when the incident listing fails.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("incident fetch failed (%s): status %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("incident fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a FetchError of kind Unauthorized.
func IsUnauthorized(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == Unauthorized
}
