package server

import (
	"html/template"
	"net/http"
)

// Minimal HTML shells for the anonymous landing and profile destinations.
// Real deployments typically front this service with their own UI; these
// pages keep the redirect targets resolvable out of the box.

var landingTemplate = template.Must(template.New("landing").Parse(`<!doctype html>
<html>
<head><title>Sign in with X</title></head>
<body>
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form action="/signin-start" method="get"><button type="submit">Sign in with X</button></form>
</body>
</html>`))

var profileTemplate = template.Must(template.New("profile").Parse(`<!doctype html>
<html>
<head><title>Profile</title></head>
<body>
<p>Signed in as {{.User.Name}} (@{{.User.Username}})</p>
{{if .User.Bio}}<p>{{.User.Bio}}</p>{{end}}
<form action="/signout" method="post"><button type="submit">Sign out</button></form>
</body>
</html>`))

func (a *App) handleLanding(w http.ResponseWriter, r *http.Request) {
	view := struct{ Error string }{}
	if code := r.URL.Query().Get("error"); code != "" {
		view.Error = ErrorMessage(code)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingTemplate.Execute(w, view); err != nil {
		a.Logger.Error("render landing", "error", err)
	}
}

func (a *App) handleProfile(w http.ResponseWriter, r *http.Request) {
	sess := a.Sessions.Read(w, r)
	if sess == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := profileTemplate.Execute(w, sess.View()); err != nil {
		a.Logger.Error("render profile", "error", err)
	}
}
