package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionCookieName  = "x_session"
	stateCookieName    = "oauth_state"
	verifierCookieName = "oauth_code_verifier"
)

// ErrMalformed marks a session artifact that failed to decode or verify.
var ErrMalformed = errors.New("malformed session artifact")

type sessionClaims struct {
	User         Identity `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	ExpiresAt    int64    `json:"expiresAt"`
	jwt.RegisteredClaims
}

// Codec serializes sessions to and from the signed cookie artifact. The
// artifact is an HS256 compact JWT; expiry is carried as a claim and judged
// by the caller, not by JWT validation, so an expired artifact still decodes.
type Codec struct {
	key *SessionKey
}

// NewCodec builds a codec bound to the session signing key.
func NewCodec(key *SessionKey) Codec {
	return Codec{key: key}
}

// Encode signs the session into its transport artifact.
func (c Codec) Encode(s Session) (string, error) {
	claims := sessionClaims{
		User:         s.User,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = c.key.KeyID
	signed, err := token.SignedString(c.key.Secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Decode verifies and deserializes an artifact. Any failure, including a bad
// signature, is reported as ErrMalformed.
func (c Codec) Decode(raw string) (Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return c.key.Secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Session{
		User:         claims.User,
		AccessToken:  claims.AccessToken,
		RefreshToken: claims.RefreshToken,
		ExpiresAt:    claims.ExpiresAt,
	}, nil
}

// SessionManager owns the cookie read/write contract for sessions and for
// the short-lived sign-in attempt artifacts.
type SessionManager struct {
	codec        Codec
	logger       *slog.Logger
	ttl          time.Duration
	attemptTTL   time.Duration
	secure       bool
	cookieDomain string
	now          func() time.Time
}

// NewSessionManager constructs a session manager honouring config.
func NewSessionManager(cfg Config, key *SessionKey, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		codec:        NewCodec(key),
		logger:       logger,
		ttl:          cfg.SessionTTL(),
		attemptTTL:   cfg.AttemptTTL(),
		secure:       !cfg.Server.DevMode,
		cookieDomain: cfg.Server.CookieDomain,
		now:          time.Now,
	}
}

// Issue builds the session record for a completed sign-in. Expiry follows
// the provider's expires_in relative to the issue instant.
func (sm *SessionManager) Issue(user Identity, tokens TokenSet) Session {
	return Session{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    sm.now().Add(time.Duration(tokens.ExpiresIn) * time.Second).UnixMilli(),
	}
}

// Write encodes the session and sets the session cookie.
func (sm *SessionManager) Write(w http.ResponseWriter, s Session) error {
	encoded, err := sm.codec.Encode(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		Domain:   sm.cookieDomain,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.ttl.Seconds()),
	})
	return nil
}

// Read returns the valid session carried by the request, or nil. A cookie
// that fails to decode or has expired is purged on the same response so
// garbage self-heals within one round trip. Read never fails the caller.
func (sm *SessionManager) Read(w http.ResponseWriter, r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil
	}
	sess, err := sm.codec.Decode(cookie.Value)
	if err != nil {
		sm.logger.Debug("purging undecodable session cookie", "error", err)
		sm.Clear(w)
		return nil
	}
	if sess.Expired(sm.now()) {
		sm.Clear(w)
		return nil
	}
	return &sess
}

// Clear deletes the session cookie.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	sm.deleteCookie(w, sessionCookieName)
}

// WriteAttempt persists the state and verifier as short-lived cookies bound
// to the browser that will complete the callback.
func (sm *SessionManager) WriteAttempt(w http.ResponseWriter, a Attempt) {
	maxAge := int(sm.attemptTTL.Seconds())
	for name, value := range map[string]string{
		stateCookieName:    a.State,
		verifierCookieName: a.CodeVerifier,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Domain:   sm.cookieDomain,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   maxAge,
		})
	}
}

// ReadAttempt returns the persisted state and verifier, empty when absent.
func (sm *SessionManager) ReadAttempt(r *http.Request) (state, verifier string) {
	if c, err := r.Cookie(stateCookieName); err == nil {
		state = c.Value
	}
	if c, err := r.Cookie(verifierCookieName); err == nil {
		verifier = c.Value
	}
	return state, verifier
}

// ClearAttempt discards the attempt cookies. Called unconditionally once the
// callback has consumed them, whatever the outcome.
func (sm *SessionManager) ClearAttempt(w http.ResponseWriter) {
	sm.deleteCookie(w, stateCookieName)
	sm.deleteCookie(w, verifierCookieName)
}

func (sm *SessionManager) deleteCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   sm.cookieDomain,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
