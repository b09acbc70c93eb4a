package oauth

import (
	"context"
	"errors"

	"incidentrelay/internal/metrics"
	"incidentrelay/pkg/logging"
	pkgoauth "incidentrelay/pkg/oauth"
)

// Exchanger converts authorization codes and refresh tokens into access tokens.
type Exchanger interface {
	// ExchangeCode performs the authorization_code grant with the PKCE verifier.
	ExchangeCode(ctx context.Context, code, verifier string) (*pkgoauth.Token, error)

	// Refresh performs the refresh_token grant.
	Refresh(ctx context.Context, refreshToken string) (*pkgoauth.Token, error)
}

// Provider is the subset of the identity provider client used by Service.
type Provider interface {
	AuthCodeURL(ctx context.Context, state, codeChallenge string) (string, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*pkgoauth.Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*pkgoauth.Token, error)
	UserInfo(ctx context.Context, accessToken string) (map[string]any, error)
}

// Service is the Exchanger backed by a real identity provider.
// It also exposes the authorization URL and userinfo lookups needed by the HTTP surface.
type Service struct {
	provider Provider
}

// NewService creates a token exchange service for the given provider.
func NewService(provider Provider) *Service {
	return &Service{provider: provider}
}

// AuthCodeURL returns the URL the user must visit to authorize the login identified by state.
func (s *Service) AuthCodeURL(ctx context.Context, state, codeChallenge string) (string, error) {
	return s.provider.AuthCodeURL(ctx, state, codeChallenge)
}

// ExchangeCode exchanges an authorization code for tokens. It is never retried.
func (s *Service) ExchangeCode(ctx context.Context, code, verifier string) (*pkgoauth.Token, error) {
	token, err := s.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		metrics.ExchangeTotal.WithLabelValues(metrics.ResultFailure).Inc()
		logging.Warn("OAuth", "Authorization code exchange failed: %v", err)
		return nil, ensureProviderError("exchange", err)
	}
	if token.AccessToken == "" {
		metrics.ExchangeTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, &pkgoauth.ProviderError{Op: "exchange", Err: errors.New("token response did not contain an access token")}
	}

	metrics.ExchangeTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return token, nil
}

// Refresh obtains a new access token with the given refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*pkgoauth.Token, error) {
	token, err := s.provider.RefreshToken(ctx, refreshToken)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues(metrics.ResultFailure).Inc()
		logging.Warn("OAuth", "Token refresh failed: %v", err)
		return nil, ensureProviderError("refresh", err)
	}

	metrics.RefreshTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return token, nil
}

// UserInfo proxies the provider's userinfo endpoint.
func (s *Service) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	info, err := s.provider.UserInfo(ctx, accessToken)
	if err != nil {
		return nil, ensureProviderError("userinfo", err)
	}
	return info, nil
}

// ensureProviderError makes every provider failure a *ProviderError so the
// HTTP layer can map it to a single status code.
func ensureProviderError(op string, err error) error {
	if pkgoauth.IsProviderError(err) {
		return err
	}
	return &pkgoauth.ProviderError{Op: op, Err: err}
}
