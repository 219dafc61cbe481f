package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testProvider(t *testing.T, tokenHandler, userHandler http.HandlerFunc) *XProvider {
	t.Helper()

	mux := http.NewServeMux()
	if tokenHandler != nil {
		mux.HandleFunc("/oauth2/token", tokenHandler)
	}
	if userHandler != nil {
		mux.HandleFunc("/users/me", userHandler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Provider.ClientID = "client-id"
	cfg.Provider.ClientSecret = "client-secret"
	cfg.Provider.TokenURL = srv.URL + "/oauth2/token"
	cfg.Provider.UserURL = srv.URL + "/users/me"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewXProvider(cfg, logger)
}

func TestExchangeSendsCodeAndVerifier(t *testing.T) {
	var gotForm map[string]string

	provider := testProvider(t,
		func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			gotForm = map[string]string{
				"grant_type":    r.FormValue("grant_type"),
				"code":          r.FormValue("code"),
				"code_verifier": r.FormValue("code_verifier"),
				"redirect_uri":  r.FormValue("redirect_uri"),
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token_type":"bearer","expires_in":7200,"access_token":"at","scope":"tweet.read users.read offline.access","refresh_token":"rt"}`))
		},
		nil,
	)

	tokens, err := provider.Exchange(context.Background(), "the-code", "the-verifier")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	if gotForm["grant_type"] != "authorization_code" {
		t.Fatalf("grant_type = %q", gotForm["grant_type"])
	}
	if gotForm["code"] != "the-code" || gotForm["code_verifier"] != "the-verifier" {
		t.Fatalf("form = %v", gotForm)
	}
	if !strings.HasSuffix(gotForm["redirect_uri"], "/callback") {
		t.Fatalf("redirect_uri = %q", gotForm["redirect_uri"])
	}

	want := TokenSet{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresIn:    7200,
		TokenType:    "bearer",
		Scope:        "tweet.read users.read offline.access",
	}
	if tokens != want {
		t.Fatalf("tokens = %+v, want %+v", tokens, want)
	}
}

func TestExchangeFailureSurfacesError(t *testing.T) {
	provider := testProvider(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_request"}`))
		},
		nil,
	)

	if _, err := provider.Exchange(context.Background(), "bad-code", "v"); err == nil {
		t.Fatalf("expected error for 400 response")
	}
}

func TestFetchUserParsesProfile(t *testing.T) {
	provider := testProvider(t,
		nil,
		func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer the-token" {
				t.Fatalf("Authorization = %q", got)
			}
			if got := r.URL.Query().Get("user.fields"); got != "profile_image_url,description" {
				t.Fatalf("user.fields = %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"id":"12345","name":"Ada Lovelace","username":"ada","profile_image_url":"https://pbs.example/ada.png","description":"first programmer"}}`))
		},
	)

	user, err := provider.FetchUser(context.Background(), "the-token")
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}

	want := Identity{
		ID:        "12345",
		Name:      "Ada Lovelace",
		Username:  "ada",
		AvatarURL: "https://pbs.example/ada.png",
		Bio:       "first programmer",
	}
	if user != want {
		t.Fatalf("user = %+v, want %+v", user, want)
	}
}

func TestFetchUserRejectsFailure(t *testing.T) {
	provider := testProvider(t,
		nil,
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		},
	)

	if _, err := provider.FetchUser(context.Background(), "t"); err == nil {
		t.Fatalf("expected error for 429 response")
	}
}

func TestFetchUserRequiresID(t *testing.T) {
	provider := testProvider(t,
		nil,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{}}`))
		},
	)

	if _, err := provider.FetchUser(context.Background(), "t"); err == nil {
		t.Fatalf("expected error for profile without id")
	}
}

func TestAuthCodeURLCarriesChallenge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider.ClientID = "client-id"
	cfg.Provider.ClientSecret = "client-secret"
	cfg.Server.PublicURL = "https://signin.example"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := NewXProvider(cfg, logger)

	attempt := Attempt{State: "the-state", CodeVerifier: "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"}
	u := provider.AuthCodeURL(attempt)

	for _, fragment := range []string{
		"response_type=code",
		"client_id=client-id",
		"state=the-state",
		"code_challenge_method=S256",
		"code_challenge=" + attempt.Challenge(),
		"redirect_uri=" + "https%3A%2F%2Fsignin.example%2Fcallback",
	} {
		if !strings.Contains(u, fragment) {
			t.Fatalf("authorize URL missing %q: %s", fragment, u)
		}
	}
}
