package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const hstsMaxAge = 63072000 // two years

// Routes constructs the HTTP router with the sign-in flow endpoints.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.Logger))
	r.Use(RecoveryMiddleware(a.Logger))
	if !a.Config.Server.DevMode {
		r.Use(SecurityHeadersMiddleware(hstsMaxAge))
	}

	r.Get("/", a.handleLanding)
	r.Get("/profile", a.handleProfile)

	r.Get("/signin-start", a.handleSignInStart)
	r.Get("/callback", a.handleCallback)
	r.Get("/session", a.handleSession)
	r.Post("/signout", a.handleSignOut)

	return r
}
