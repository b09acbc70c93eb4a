package oauth

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ProviderError is returned when a call to the identity provider fails, either
// because it answered with a non-2xx status or because it could not be reached.
// StatusCode is zero for transport failures.
type ProviderError struct {
	// Op is the provider operation that failed ("exchange", "refresh", "userinfo", "discovery").
	Op string

	// StatusCode is the HTTP status returned by the provider, if any.
	StatusCode int

	// Code is the OAuth error code from the response body (e.g. "invalid_grant").
	Code string

	// Description is the OAuth error_description, if any.
	Description string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("identity provider %s failed: status %d: %s", e.Op, e.StatusCode, e.Code)
	case e.StatusCode != 0:
		return fmt.Sprintf("identity provider %s failed: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("identity provider %s failed: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err is or wraps a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// newProviderError converts an error from golang.org/x/oauth2 into a ProviderError.
// Response bodies are not copied into the error since they may contain hints
// about the request that should not reach callers.
func newProviderError(op string, err error) *ProviderError {
	pe := &ProviderError{Op: op, Err: err}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		pe.Code = re.ErrorCode
		pe.Description = re.ErrorDescription
		if re.Response != nil {
			pe.StatusCode = re.Response.StatusCode
		}
	}
	return pe
}
