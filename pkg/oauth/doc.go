// Package oauth provides the OAuth 2.1 building blocks used by the relay:
// PKCE generation, token types and a provider client.
//
// # Core Components
//
//   - PKCE: verifier/challenge generation (RFC 7636, S256 only)
//   - Token: OAuth token representation with expiry checking
//   - Metadata: OAuth/OIDC server metadata (RFC 8414)
//   - Client: authorization URL construction, code exchange, refresh and userinfo
//   - ProviderError: typed failure of any identity provider call
//
// # Usage
//
//	client := oauth.NewClient(oauth.Config{
//	    Issuer:      "https://idp.example.com",
//	    ClientID:    "incidentrelay",
//	    RedirectURL: "https://relay.example.com/callback",
//	    Scopes:      []string{"openid", "profile"},
//	})
//
//	pkce, err := oauth.GeneratePKCE()
//	authURL, err := client.AuthCodeURL(ctx, state, pkce.CodeChallenge)
//	token, err := client.ExchangeCode(ctx, code, pkce.CodeVerifier)
//
// The verifier never leaves the process that generated it; only the challenge
// is placed in the authorization URL.
package oauth
