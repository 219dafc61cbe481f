package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRefreshAuthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/session" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session":{"user":{"id":"1","username":"ada"},"expiresAt":1700000000000}}`))
	}))
	defer srv.Close()

	cache := New(Config{BaseURL: srv.URL})
	cache.Refresh(context.Background())

	view := cache.Snapshot()
	if view.Status != StatusAuthenticated {
		t.Fatalf("status = %s, want authenticated", view.Status)
	}
	if view.User == nil || view.User.Username != "ada" {
		t.Fatalf("user = %+v", view.User)
	}
	if view.ExpiresAt != 1700000000000 {
		t.Fatalf("expiresAt = %d", view.ExpiresAt)
	}
}

func TestRefreshNullSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session":null}`))
	}))
	defer srv.Close()

	cache := New(Config{BaseURL: srv.URL})
	cache.Refresh(context.Background())

	if got := cache.Snapshot().Status; got != StatusUnauthenticated {
		t.Fatalf("status = %s, want unauthenticated", got)
	}
}

func TestRefreshNeverSticksAtLoading(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server_error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"non_json_body", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>maintenance</html>"))
		}},
		{"unparseable_json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"session":`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			cache := New(Config{BaseURL: srv.URL})
			cache.Refresh(context.Background())

			if got := cache.Snapshot().Status; got != StatusUnauthenticated {
				t.Fatalf("status = %s, want unauthenticated", got)
			}
		})
	}
}

func TestRefreshUnreachableServer(t *testing.T) {
	cache := New(Config{BaseURL: "http://127.0.0.1:1", HTTPClient: &http.Client{Timeout: time.Second}})
	cache.Refresh(context.Background())

	if got := cache.Snapshot().Status; got != StatusUnauthenticated {
		t.Fatalf("status = %s, want unauthenticated", got)
	}
}

func TestSignOutAlwaysUnauthenticates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache := New(Config{BaseURL: srv.URL})
	cache.set(View{Status: StatusAuthenticated, User: &User{ID: "1"}})

	err := cache.SignOut(context.Background())
	if err == nil {
		t.Fatalf("expected error from failing signout")
	}
	if got := cache.Snapshot().Status; got != StatusUnauthenticated {
		t.Fatalf("status = %s, want unauthenticated after failed signout", got)
	}
}

func TestSignOutSuccessRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/signout" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}))
	defer srv.Close()

	cache := New(Config{BaseURL: srv.URL})
	if err := cache.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
}

func TestStartPollsAndStops(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session":null}`))
	}))
	defer srv.Close()

	cache := New(Config{BaseURL: srv.URL, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cache.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("poll loop made %d queries, want >= 3", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Start did not stop on cancellation")
	}

	settled := calls.Load()
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != settled {
		t.Fatalf("queries continued after cancellation")
	}
}

func TestOnChangeFires(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session":{"user":{"id":"1"},"expiresAt":5}}`))
	}))
	defer srv.Close()

	var transitions []Status
	cache := New(Config{
		BaseURL:  srv.URL,
		OnChange: func(v View) { transitions = append(transitions, v.Status) },
	})
	cache.Refresh(context.Background())

	// The initial view is already loading, so the only transition observed
	// is the resolution to authenticated.
	if len(transitions) != 1 || transitions[0] != StatusAuthenticated {
		t.Fatalf("transitions = %v", transitions)
	}
}
