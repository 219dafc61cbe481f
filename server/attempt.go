package server

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// NewAttempt generates a fresh state value and PKCE verifier. The state is
// 32 bytes of entropy, base64url without padding; the verifier follows RFC
// 7636 via the oauth2 package.
func NewAttempt() (Attempt, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return Attempt{}, fmt.Errorf("generate state: %w", err)
	}
	return Attempt{
		State:        base64.RawURLEncoding.EncodeToString(buf),
		CodeVerifier: oauth2.GenerateVerifier(),
	}, nil
}

// Challenge derives the S256 code challenge for the attempt's verifier.
func (a Attempt) Challenge() string {
	return oauth2.S256ChallengeFromVerifier(a.CodeVerifier)
}
