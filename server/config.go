package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardcoded session and attempt defaults
const (
	DefaultSessionTTL  = 7 * 24 * time.Hour
	DefaultAttemptTTL  = 10 * time.Minute
	DefaultHTTPTimeout = 10 * time.Second
)

// Hardcoded X (Twitter) OAuth 2.0 endpoints. The service is bound to this
// one provider; endpoints are configurable only so tests can point at fakes.
const (
	DefaultAuthorizeURL = "https://x.com/i/oauth2/authorize"
	DefaultTokenURL     = "https://api.x.com/2/oauth2/token"
	DefaultUserURL      = "https://api.x.com/2/users/me"
)

// DefaultScopes covers reading the profile and keeping a refresh token.
var DefaultScopes = []string{"tweet.read", "users.read", "offline.access"}

// Config captures the full application configuration loaded from YAML and
// environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Sessions SessionConfig  `yaml:"sessions"`
}

// ServerConfig controls listener, TLS, and cookie concerns.
type ServerConfig struct {
	PublicURL       string    `yaml:"public_url"`
	DevListenAddr   string    `yaml:"dev_listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	CookieDomain    string    `yaml:"cookie_domain"`
	SecretsPath     string    `yaml:"secrets_path"`
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour and TLS constraints.
type TLSConfig struct {
	Domains    []string `yaml:"domains"`
	Email      string   `yaml:"email"`
	MinVersion string   `yaml:"min_version"`
}

// ProviderConfig holds the OAuth client registration with the provider.
type ProviderConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthorizeURL string   `yaml:"authorize_url"`
	TokenURL     string   `yaml:"token_url"`
	UserURL      string   `yaml:"user_url"`
	Scopes       []string `yaml:"scopes"`
}

// SessionConfig controls session and sign-in attempt lifetimes. Values are
// Go duration strings ("168h", "10m").
type SessionConfig struct {
	TTL        string `yaml:"ttl"`
	AttemptTTL string `yaml:"attempt_ttl"`
}

// SessionTTL returns the parsed session lifetime.
func (c Config) SessionTTL() time.Duration {
	return parseDuration(c.Sessions.TTL, DefaultSessionTTL)
}

// AttemptTTL returns the parsed sign-in attempt lifetime.
func (c Config) AttemptTTL() time.Duration {
	return parseDuration(c.Sessions.AttemptTTL, DefaultAttemptTTL)
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		sanitized := stripYAMLComments(b)

		// Use strict unmarshaling to detect unknown fields
		decoder := yaml.NewDecoder(bytes.NewReader(sanitized))
		decoder.KnownFields(true)

		if err := decoder.Decode(&cfg); err != nil {
			if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
				slog.Error("Configuration contains unknown keys", "error", err, "file", path)
				return Config{}, fmt.Errorf("invalid config: %w (check for typos or deprecated fields)", err)
			}
			slog.Error("Failed to parse configuration", "error", err, "file", path)
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			PublicURL:       "http://127.0.0.1:8080",
			DevListenAddr:   "127.0.0.1:8080",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			SecretsPath:     ".secrets",
			TLS: TLSConfig{
				Domains:    []string{"localhost"},
				MinVersion: "1.2",
			},
		},
		Provider: ProviderConfig{
			AuthorizeURL: DefaultAuthorizeURL,
			TokenURL:     DefaultTokenURL,
			UserURL:      DefaultUserURL,
			Scopes:       append([]string(nil), DefaultScopes...),
		},
		Sessions: SessionConfig{
			TTL:        DefaultSessionTTL.String(),
			AttemptTTL: DefaultAttemptTTL.String(),
		},
	}
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return defaultConfig()
}

func stripYAMLComments(in []byte) []byte {
	lines := bytes.Split(in, []byte("\n"))
	out := make([][]byte, 0, len(lines))
	for _, line := range lines {
		trim := bytes.TrimLeft(line, " \t")
		if len(trim) > 0 && trim[0] == '#' {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		// Names kept compatible with the original deployment.
		"X_CLIENT_ID":     func(v string) { cfg.Provider.ClientID = v },
		"X_CLIENT_SECRET": func(v string) { cfg.Provider.ClientSecret = v },
		"PUBLIC_URL":      func(v string) { cfg.Server.PublicURL = v },

		"XSIGND_SERVER_PUBLIC_URL":        func(v string) { cfg.Server.PublicURL = v },
		"XSIGND_SERVER_DEV_LISTEN_ADDR":   func(v string) { cfg.Server.DevListenAddr = v },
		"XSIGND_SERVER_HTTP_LISTEN_ADDR":  func(v string) { cfg.Server.HTTPListenAddr = v },
		"XSIGND_SERVER_HTTPS_LISTEN_ADDR": func(v string) { cfg.Server.HTTPSListenAddr = v },
		"XSIGND_SERVER_DEV_MODE":          func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"XSIGND_SERVER_COOKIE_DOMAIN":     func(v string) { cfg.Server.CookieDomain = v },
		"XSIGND_SERVER_SECRETS_PATH":      func(v string) { cfg.Server.SecretsPath = v },
		"XSIGND_SERVER_TLS_DOMAINS":       func(v string) { cfg.Server.TLS.Domains = splitAndTrim(v) },
		"XSIGND_SERVER_TLS_EMAIL":         func(v string) { cfg.Server.TLS.Email = v },
		"XSIGND_SESSIONS_TTL":             func(v string) { cfg.Sessions.TTL = v },
		"XSIGND_SESSIONS_ATTEMPT_TTL":     func(v string) { cfg.Sessions.AttemptTTL = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseDuration(val string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate performs sanity checks on the config. Missing provider
// credentials are not fatal here: the service boots and refuses the sign-in
// flow with a structured error naming the absent variables instead.
func (c Config) Validate() error {
	if c.Server.PublicURL == "" {
		slog.Error("Missing required configuration", "field", "server.public_url")
		return errors.New("server.public_url is required")
	}

	if !strings.HasPrefix(c.Server.PublicURL, "http://") && !strings.HasPrefix(c.Server.PublicURL, "https://") {
		slog.Error("Invalid configuration value", "field", "server.public_url", "value", c.Server.PublicURL, "reason", "must start with http:// or https://")
		return fmt.Errorf("server.public_url must start with http:// or https://, got: %s", c.Server.PublicURL)
	}

	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		slog.Error("Missing required configuration for production mode", "field", "server.tls.domains")
		return errors.New("server.tls.domains must be provided in production")
	}

	if c.Server.TLS.MinVersion != "" {
		validVersions := map[string]bool{"1.2": true, "1.3": true}
		if !validVersions[c.Server.TLS.MinVersion] {
			slog.Error("Invalid TLS minimum version", "field", "server.tls.min_version", "value", c.Server.TLS.MinVersion)
			return fmt.Errorf("server.tls.min_version must be '1.2' or '1.3', got: %s", c.Server.TLS.MinVersion)
		}
	}

	if c.Sessions.TTL != "" {
		if d, err := time.ParseDuration(c.Sessions.TTL); err != nil || d <= 0 {
			return fmt.Errorf("sessions.ttl must be a positive duration, got: %s", c.Sessions.TTL)
		}
	}
	if c.Sessions.AttemptTTL != "" {
		if d, err := time.ParseDuration(c.Sessions.AttemptTTL); err != nil || d <= 0 {
			return fmt.Errorf("sessions.attempt_ttl must be a positive duration, got: %s", c.Sessions.AttemptTTL)
		}
	}

	if missing := c.MissingCredentials(); len(missing) > 0 {
		slog.Warn("Provider credentials incomplete; sign-in flow disabled", "missing", missing)
	}

	return nil
}

// MissingCredentials names the environment-provided inputs that are absent.
// A non-empty result means the sign-in flow must refuse to start.
func (c Config) MissingCredentials() []string {
	var missing []string
	if c.Provider.ClientID == "" {
		missing = append(missing, "X_CLIENT_ID")
	}
	if c.Provider.ClientSecret == "" {
		missing = append(missing, "X_CLIENT_SECRET")
	}
	if c.Server.PublicURL == "" {
		missing = append(missing, "PUBLIC_URL")
	}
	return missing
}

// RedirectURL is the callback URI registered with the provider. It must be
// byte-identical in the authorization request and the token exchange.
func (c Config) RedirectURL() string {
	return strings.TrimSuffix(c.Server.PublicURL, "/") + "/callback"
}
