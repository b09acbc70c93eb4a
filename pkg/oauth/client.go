package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"incidentrelay/pkg/logging"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMetadataCacheTTL is the default TTL for cached OAuth metadata.
	DefaultMetadataCacheTTL = 30 * time.Minute

	// maxUserInfoBytes caps the userinfo response we are willing to buffer.
	maxUserInfoBytes = 1 << 20
)

// Config describes the OAuth client registration at the identity provider.
// Endpoints may be given explicitly; any that are missing are discovered from Issuer.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserinfoURL string
}

// metadataCacheEntry holds cached OAuth metadata with its timestamp.
type metadataCacheEntry struct {
	metadata  *Metadata
	fetchedAt time.Time
}

// Client handles OAuth 2.1 protocol operations against a single identity provider:
// metadata discovery, authorization URL construction, code exchange with PKCE,
// token refresh and userinfo lookups.
type Client struct {
	cfg        Config
	httpClient *http.Client

	// Metadata cache with mutex for thread safety
	metadataMu    sync.RWMutex
	metadataCache map[string]*metadataCacheEntry
	metadataTTL   time.Duration

	// singleflight group to deduplicate concurrent metadata fetches
	metadataGroup singleflight.Group
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMetadataCacheTTL sets the metadata cache TTL.
func WithMetadataCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.metadataTTL = ttl
	}
}

// NewClient creates a new OAuth client for the given registration.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: DefaultHTTPTimeout},
		metadataCache: make(map[string]*metadataCacheEntry),
		metadataTTL:   DefaultMetadataCacheTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Endpoints returns the provider endpoints, combining explicit configuration with
// discovered metadata. Discovery only happens when an endpoint is missing.
func (c *Client) Endpoints(ctx context.Context) (*Metadata, error) {
	m := &Metadata{
		Issuer:                c.cfg.Issuer,
		AuthorizationEndpoint: c.cfg.AuthURL,
		TokenEndpoint:         c.cfg.TokenURL,
		UserinfoEndpoint:      c.cfg.UserinfoURL,
	}
	if m.AuthorizationEndpoint != "" && m.TokenEndpoint != "" && m.UserinfoEndpoint != "" {
		return m, nil
	}
	if c.cfg.Issuer == "" {
		if m.AuthorizationEndpoint == "" || m.TokenEndpoint == "" {
			return nil, fmt.Errorf("no issuer configured and authorization/token endpoints are missing")
		}
		return m, nil
	}

	discovered, err := c.DiscoverMetadata(ctx, c.cfg.Issuer)
	if err != nil {
		return nil, err
	}
	if m.AuthorizationEndpoint == "" {
		m.AuthorizationEndpoint = discovered.AuthorizationEndpoint
	}
	if m.TokenEndpoint == "" {
		m.TokenEndpoint = discovered.TokenEndpoint
	}
	if m.UserinfoEndpoint == "" {
		m.UserinfoEndpoint = discovered.UserinfoEndpoint
	}
	m.CodeChallengeMethodsSupported = discovered.CodeChallengeMethodsSupported
	return m, nil
}

// DiscoverMetadata fetches OAuth metadata from the issuer's well-known endpoint.
// It tries RFC 8414 (/.well-known/oauth-authorization-server) first,
// then falls back to OpenID Connect (/.well-known/openid-configuration).
//
// Results are cached with a TTL to reduce network requests.
func (c *Client) DiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	issuer = strings.TrimSuffix(issuer, "/")

	if m := c.cachedMetadata(issuer); m != nil {
		return m, nil
	}

	// Use singleflight to deduplicate concurrent fetches
	result, err, _ := c.metadataGroup.Do(issuer, func() (interface{}, error) {
		if m := c.cachedMetadata(issuer); m != nil {
			return m, nil
		}
		return c.doDiscoverMetadata(ctx, issuer)
	})
	if err != nil {
		return nil, err
	}

	return result.(*Metadata), nil
}

func (c *Client) cachedMetadata(issuer string) *Metadata {
	c.metadataMu.RLock()
	defer c.metadataMu.RUnlock()
	if entry, ok := c.metadataCache[issuer]; ok && time.Since(entry.fetchedAt) < c.metadataTTL {
		return entry.metadata
	}
	return nil
}

// doDiscoverMetadata performs the actual HTTP fetch for OAuth metadata.
func (c *Client) doDiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	metadata, err := c.fetchMetadata(ctx, issuer+"/.well-known/oauth-authorization-server")
	if err == nil {
		c.cacheMetadata(issuer, metadata)
		return metadata, nil
	}

	logging.Debug("OAuth", "RFC 8414 metadata fetch failed for issuer=%s, trying OIDC: %v", issuer, err)

	metadata, err = c.fetchMetadata(ctx, issuer+"/.well-known/openid-configuration")
	if err == nil {
		c.cacheMetadata(issuer, metadata)
		return metadata, nil
	}

	return nil, &ProviderError{Op: "discovery", Err: fmt.Errorf("failed to discover OAuth metadata for %s: %w", issuer, err)}
}

// fetchMetadata fetches metadata from a specific URL.
func (c *Client) fetchMetadata(ctx context.Context, metadataURL string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata request failed with status %d", resp.StatusCode)
	}

	var metadata Metadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if metadata.AuthorizationEndpoint == "" || metadata.TokenEndpoint == "" {
		return nil, fmt.Errorf("metadata at %s is missing required endpoints", metadataURL)
	}

	return &metadata, nil
}

// cacheMetadata stores metadata in the cache.
func (c *Client) cacheMetadata(issuer string, metadata *Metadata) {
	c.metadataMu.Lock()
	c.metadataCache[issuer] = &metadataCacheEntry{
		metadata:  metadata,
		fetchedAt: time.Now(),
	}
	c.metadataMu.Unlock()

	logging.Debug("OAuth", "Cached OAuth metadata for issuer=%s (auth=%s, token=%s)",
		issuer, metadata.AuthorizationEndpoint, metadata.TokenEndpoint)
}

// ClearMetadataCache clears the metadata cache.
func (c *Client) ClearMetadataCache() {
	c.metadataMu.Lock()
	c.metadataCache = make(map[string]*metadataCacheEntry)
	c.metadataMu.Unlock()
}

// oauth2Config builds the golang.org/x/oauth2 configuration for the current endpoints.
func (c *Client) oauth2Config(ctx context.Context) (*oauth2.Config, error) {
	m, err := c.Endpoints(ctx)
	if err != nil {
		return nil, err
	}

	authStyle := oauth2.AuthStyleAutoDetect
	if c.cfg.ClientSecret == "" {
		// Public PKCE clients identify themselves in the form body.
		authStyle = oauth2.AuthStyleInParams
	}

	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURL,
		Scopes:       c.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   m.AuthorizationEndpoint,
			TokenURL:  m.TokenEndpoint,
			AuthStyle: authStyle,
		},
	}, nil
}

// httpContext makes golang.org/x/oauth2 use our HTTP client.
func (c *Client) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// AuthCodeURL constructs the authorization URL for one login attempt.
// Only the challenge is sent; the verifier stays with the caller.
func (c *Client) AuthCodeURL(ctx context.Context, state, codeChallenge string) (string, error) {
	cfg, err := c.oauth2Config(ctx)
	if err != nil {
		return "", err
	}

	return cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethodS256),
	), nil
}

// ExchangeCode exchanges an authorization code and its PKCE verifier for tokens.
// The call is never retried: authorization codes are single-use.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Token, error) {
	cfg, err := c.oauth2Config(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := cfg.Exchange(c.httpContext(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, newProviderError("exchange", err)
	}

	token := FromOAuth2Token(tok)
	logging.Debug("OAuth", "Exchanged authorization code for token (expires_in=%d, refresh=%t)",
		token.ExpiresIn, token.RefreshToken != "")
	return token, nil
}

// RefreshToken obtains a new access token using a refresh token.
// If the provider does not rotate the refresh token, the old one is kept.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, &ProviderError{Op: "refresh", Err: fmt.Errorf("no refresh token available")}
	}

	cfg, err := c.oauth2Config(ctx)
	if err != nil {
		return nil, err
	}

	// An empty access token is never valid, so the source always hits the token endpoint.
	src := cfg.TokenSource(c.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, newProviderError("refresh", err)
	}

	token := FromOAuth2Token(tok)
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	logging.Debug("OAuth", "Refreshed token (expires_in=%d)", token.ExpiresIn)
	return token, nil
}

// UserInfo fetches the OIDC userinfo document for the given access token.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	m, err := c.Endpoints(ctx)
	if err != nil {
		return nil, err
	}
	if m.UserinfoEndpoint == "" {
		return nil, &ProviderError{Op: "userinfo", Err: fmt.Errorf("provider does not expose a userinfo endpoint")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.UserinfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Op: "userinfo", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, &ProviderError{Op: "userinfo", Err: fmt.Errorf("failed to read userinfo response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		logging.Debug("OAuth", "Userinfo request failed: status=%d", resp.StatusCode)
		return nil, &ProviderError{Op: "userinfo", StatusCode: resp.StatusCode,
			Err: fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)}
	}

	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &ProviderError{Op: "userinfo", Err: fmt.Errorf("failed to parse userinfo response: %w", err)}
	}
	return info, nil
}
