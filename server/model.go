package server

import "time"

// Attempt carries the CSRF state and PKCE verifier for one sign-in round trip.
type Attempt struct {
	State        string
	CodeVerifier string
}

// TokenSet is the provider's response to a successful code exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	Scope        string
}

// Identity is the normalized profile fetched from the provider's user endpoint.
type Identity struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// Session is the authentication record carried inside the session cookie.
// Tokens never leave the encoded artifact.
type Session struct {
	User         Identity
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // unix millis
}

// Expired reports whether the session is past its expiry at the given instant.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.UnixMilli()
}

// SessionView is the redacted projection returned to browsers by /session.
type SessionView struct {
	User      Identity `json:"user"`
	ExpiresAt int64    `json:"expiresAt"`
}

// View strips the tokens from a session.
func (s Session) View() SessionView {
	return SessionView{User: s.User, ExpiresAt: s.ExpiresAt}
}
