package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"incidentrelay/internal/incident"
	"incidentrelay/pkg/logging"
)

// DefaultTimeout is the default timeout for API requests.
const DefaultTimeout = 30 * time.Second

// APIError is returned for non-2xx relay responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("relay returned %d", e.StatusCode)
}

// IsUnauthorized reports whether err is a 401 from the relay.
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusUnauthorized
}

// LoginResponse is returned by Login.
type LoginResponse struct {
	AuthURL   string `json:"authUrl"`
	SessionID string `json:"sessionId"`
}

// SessionStatus mirrors the relay's session view.
type SessionStatus struct {
	SessionID string    `json:"sessionId"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Authenticated reports whether the session completed login.
func (s SessionStatus) Authenticated() bool {
	return s.State == "AUTHENTICATED"
}

// API talks to a relay over HTTP.
type API struct {
	baseURL    string
	httpClient *http.Client
}

// APIOption configures the API client.
type APIOption func(*API)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *API) {
		a.httpClient = c
	}
}

// WithInsecureTLS disables certificate verification, for relays using a
// self-signed development certificate.
func WithInsecureTLS() APIOption {
	return func(a *API) {
		a.httpClient = &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				// #nosec G402 -- opt-in for local development relays
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}
}

// NewAPI creates a client for the relay at baseURL.
func NewAPI(baseURL string, opts ...APIOption) *API {
	a := &API{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BaseURL returns the relay URL.
func (a *API) BaseURL() string {
	return a.baseURL
}

// Login starts a login.
func (a *API) Login(ctx context.Context) (*LoginResponse, error) {
	var resp LoginResponse
	if err := a.get(ctx, "/login", "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Session returns the session's state.
func (a *API) Session(ctx context.Context, sessionID string) (*SessionStatus, error) {
	var resp SessionStatus
	if err := a.get(ctx, "/session", sessionID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitForLogin polls the session until it is authenticated, ctx ends or the
// session disappears.
func (a *API) WaitForLogin(ctx context.Context, sessionID string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := a.Session(ctx, sessionID)
		if err != nil {
			return err
		}
		if status.Authenticated() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Incidents triggers a fetch on the relay and returns the records.
func (a *API) Incidents(ctx context.Context, sessionID string) ([]incident.Record, error) {
	var records []incident.Record
	if err := a.get(ctx, "/incidents", sessionID, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// User returns the identity provider's userinfo for the session.
func (a *API) User(ctx context.Context, sessionID string) (map[string]any, error) {
	var info map[string]any
	if err := a.get(ctx, "/user", sessionID, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// Logout revokes the session.
func (a *API) Logout(ctx context.Context, sessionID string) error {
	return a.get(ctx, "/logout", sessionID, nil)
}

func (a *API) get(ctx context.Context, path, sessionID string, out any) error {
	target := a.baseURL + path
	if sessionID != "" {
		target += "?" + url.Values{"sessionId": {sessionID}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		logging.Debug("Watch", "GET %s returned status=%d", path, resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
