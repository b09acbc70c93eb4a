package session

import "golang.org/x/oauth2"

func oauth2Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
