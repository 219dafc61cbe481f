package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
)

// App bundles runtime dependencies for the HTTP service.
type App struct {
	Config   Config
	Logger   *slog.Logger
	Sessions *SessionManager
	Provider Provider
}

// NewApp wires together the application state from configuration.
func NewApp(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	key, err := LoadSessionKey(cfg.Server.SecretsPath, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Sessions: NewSessionManager(cfg, key, logger),
		Provider: NewXProvider(cfg, logger),
	}, nil
}

// handleSignInStart begins the authorization code flow: generate the
// attempt, persist it in browser-scoped cookies, redirect to the provider.
func (a *App) handleSignInStart(w http.ResponseWriter, r *http.Request) {
	if missing := a.Config.MissingCredentials(); len(missing) > 0 {
		a.Logger.Error("sign-in refused: missing configuration", "missing", missing)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "authentication configuration error",
			"missing": missing,
		})
		return
	}

	attempt, err := NewAttempt()
	if err != nil {
		a.Logger.Error("attempt generation failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	a.Sessions.WriteAttempt(w, attempt)
	http.Redirect(w, r, a.Provider.AuthCodeURL(attempt), http.StatusFound)
}

// handleCallback walks the post-redirect gates in order. Each gate aborts
// the rest of the sequence; the attempt cookies are discarded whatever the
// outcome once the state gate has been evaluated.
func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			a.Logger.Error("callback panic", "error", rec)
			a.Sessions.ClearAttempt(w)
			a.redirectError(w, r, ErrCodeAuthentication)
		}
	}()

	q := r.URL.Query()

	if provErr := q.Get("error"); provErr != "" {
		a.Logger.Warn("provider returned error", "error", provErr)
		a.Sessions.ClearAttempt(w)
		a.redirectError(w, r, provErr)
		return
	}

	code := q.Get("code")
	if code == "" {
		a.Sessions.ClearAttempt(w)
		a.redirectError(w, r, ErrCodeMissingCode)
		return
	}

	storedState, verifier := a.Sessions.ReadAttempt(r)
	a.Sessions.ClearAttempt(w)

	if storedState == "" || q.Get("state") != storedState {
		a.Logger.Warn("state mismatch on callback")
		a.redirectError(w, r, ErrCodeInvalidState)
		return
	}

	if verifier == "" {
		a.Logger.Warn("code verifier missing on callback")
		a.redirectError(w, r, ErrCodeMissingCodeVerifier)
		return
	}

	tokens, err := a.Provider.Exchange(r.Context(), code, verifier)
	if err != nil {
		a.Logger.Error("token exchange failed", "error", err)
		a.redirectError(w, r, ErrCodeTokenExchange)
		return
	}

	user, err := a.Provider.FetchUser(r.Context(), tokens.AccessToken)
	if err != nil {
		a.Logger.Error("user fetch failed", "error", err)
		a.redirectError(w, r, ErrCodeUserFetch)
		return
	}

	session := a.Sessions.Issue(user, tokens)
	if err := a.Sessions.Write(w, session); err != nil {
		a.Logger.Error("session write failed", "error", err)
		a.redirectError(w, r, ErrCodeAuthentication)
		return
	}

	a.Logger.Info("sign-in completed", "user_id", user.ID, "username", user.Username)
	http.Redirect(w, r, "/profile", http.StatusFound)
}

// handleSession reports the current session, tokens stripped. The response
// is never cacheable; an invalid cookie is purged by the read itself.
func (a *App) handleSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	sess := a.Sessions.Read(w, r)
	if sess == nil {
		writeJSON(w, map[string]any{"session": nil})
		return
	}
	writeJSON(w, map[string]any{"session": sess.View()})
}

func (a *App) handleSignOut(w http.ResponseWriter, r *http.Request) {
	a.Sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *App) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, "/?error="+url.QueryEscape(code), http.StatusFound)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
