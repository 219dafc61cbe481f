// Package client maintains a local cache of the sign-in service's session
// state. Consumers construct one Cache per surface, start its poll loop, and
// read snapshots; there is no package-level singleton.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Status is the tri-state session indicator.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// User mirrors the redacted identity returned by the session endpoint.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// View is a point-in-time snapshot of the cached session state.
type View struct {
	Status    Status
	User      *User
	ExpiresAt int64
}

// Config configures the cache.
type Config struct {
	BaseURL    string
	Interval   time.Duration
	HTTPClient *http.Client
	OnChange   func(View)
}

// Cache polls GET /session and keeps the last known result. Queries are
// serialized behind an in-flight guard so a slow response can never clobber
// a newer one out of order.
type Cache struct {
	baseURL  string
	interval time.Duration
	client   *http.Client
	onChange func(View)

	inflight sync.Mutex

	mu   sync.RWMutex
	view View
}

// New creates a cache with sane defaults. The initial status is loading
// until the first query resolves.
func New(cfg Config) *Cache {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Cache{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		interval: cfg.Interval,
		client:   client,
		onChange: cfg.OnChange,
		view:     View{Status: StatusLoading},
	}
}

// Start runs the poll loop: one immediate query, then one per interval.
// It blocks until ctx is cancelled; run it in a goroutine and cancel the
// context on teardown.
func (c *Cache) Start(ctx context.Context) {
	c.Refresh(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}

// Snapshot returns the current view.
func (c *Cache) Snapshot() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Refresh forces an immediate re-query. Any transport failure resolves to
// unauthenticated; the status never sticks at loading.
func (c *Cache) Refresh(ctx context.Context) {
	c.inflight.Lock()
	defer c.inflight.Unlock()

	c.set(View{Status: StatusLoading})
	c.set(c.query(ctx))
}

type sessionEnvelope struct {
	Session *struct {
		User      User  `json:"user"`
		ExpiresAt int64 `json:"expiresAt"`
	} `json:"session"`
}

func (c *Cache) query(ctx context.Context) View {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session", nil)
	if err != nil {
		return View{Status: StatusUnauthenticated}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return View{Status: StatusUnauthenticated}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return View{Status: StatusUnauthenticated}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		return View{Status: StatusUnauthenticated}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return View{Status: StatusUnauthenticated}
	}

	var envelope sessionEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return View{Status: StatusUnauthenticated}
	}
	if envelope.Session == nil {
		return View{Status: StatusUnauthenticated}
	}

	user := envelope.Session.User
	return View{
		Status:    StatusAuthenticated,
		User:      &user,
		ExpiresAt: envelope.Session.ExpiresAt,
	}
}

// SignOut asks the server to clear the session cookie, then flips the local
// state to unauthenticated regardless of the server's answer. The returned
// error reports the transport outcome for logging only.
func (c *Cache) SignOut(ctx context.Context) error {
	defer c.set(View{Status: StatusUnauthenticated})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signout", nil)
	if err != nil {
		return fmt.Errorf("build signout request: %w", err)
	}

	// The server answers with a redirect; don't chase it.
	noFollow := *c.client
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := noFollow.Do(req)
	if err != nil {
		return fmt.Errorf("signout: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("signout: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Cache) set(v View) {
	c.mu.Lock()
	changed := c.view.Status != v.Status || c.view.ExpiresAt != v.ExpiresAt
	c.view = v
	c.mu.Unlock()

	if changed && c.onChange != nil {
		c.onChange(v)
	}
}
