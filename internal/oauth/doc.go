// Package oauth implements the token exchange service of the relay.
//
// It sits between the session store and the identity provider client in
// pkg/oauth: the store calls Exchanger to turn an authorization code and its
// PKCE verifier into tokens, and to refresh them later. Service is the production
// Exchanger; it adds logging, audit events and metrics around each provider call.
//
// # Retry policy
//
// Authorization codes are single-use, so ExchangeCode never retries. Refresh is
// attempted once per call; the caller decides whether a failure expires the session.
//
// # Security
//
// Token values are never logged. Provider failures are returned as
// *oauth.ProviderError, which carries the OAuth error code but not the response body.
package oauth
