package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	// stateBytes is the number of random bytes for the OAuth state parameter.
	// 32 bytes encodes to 43 base64url characters.
	stateBytes = 32

	// ChallengeMethodS256 is the only PKCE method this package produces.
	ChallengeMethodS256 = "S256"
)

// GeneratePKCE generates a new PKCE code verifier and challenge.
// The code verifier is 32 random bytes (256 bits), base64url-encoded.
// The code challenge is the S256 (SHA256) hash of the verifier, base64url-encoded
// without padding, per RFC 7636.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifier := oauth2.GenerateVerifier()
	if len(verifier) < 43 {
		return nil, fmt.Errorf("generated PKCE verifier too short: %d", len(verifier))
	}

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       oauth2.S256ChallengeFromVerifier(verifier),
		CodeChallengeMethod: ChallengeMethodS256,
	}, nil
}

// GenerateState generates a random, unguessable identifier suitable for the
// OAuth state parameter.
//
// Returns a base64url-encoded random string.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
