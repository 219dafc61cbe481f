package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Provider represents the outbound surface to the identity provider.
type Provider interface {
	AuthCodeURL(attempt Attempt) string
	Exchange(ctx context.Context, code, verifier string) (TokenSet, error)
	FetchUser(ctx context.Context, accessToken string) (Identity, error)
}

// XProvider talks to the X (Twitter) v2 API: authorization code exchange
// with PKCE plus the users/me profile lookup.
type XProvider struct {
	oauthConfig *oauth2.Config
	userURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	timeout     time.Duration
}

// NewXProvider builds the provider from configuration.
func NewXProvider(cfg Config, logger *slog.Logger) *XProvider {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.Provider.AuthorizeURL,
			TokenURL: cfg.Provider.TokenURL,
		},
		Scopes: cfg.Provider.Scopes,
	}

	return &XProvider{
		oauthConfig: oauthCfg,
		userURL:     cfg.Provider.UserURL,
		httpClient:  &http.Client{Timeout: DefaultHTTPTimeout},
		logger:      logger,
		timeout:     DefaultHTTPTimeout,
	}
}

// AuthCodeURL constructs the authorization request for the attempt.
func (p *XProvider) AuthCodeURL(attempt Attempt) string {
	return p.oauthConfig.AuthCodeURL(attempt.State,
		oauth2.S256ChallengeOption(attempt.CodeVerifier))
}

// Exchange redeems the authorization code with the PKCE verifier. The
// provider's failure body is logged here and never propagated upward.
func (p *XProvider) Exchange(ctx context.Context, code, verifier string) (TokenSet, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			p.logger.Error("token exchange rejected",
				"status", rerr.Response.StatusCode,
				"body", string(rerr.Body))
		}
		return TokenSet{}, fmt.Errorf("exchange code: %w", err)
	}

	return tokenSetFrom(tok), nil
}

func tokenSetFrom(tok *oauth2.Token) TokenSet {
	ts := TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if v, ok := tok.Extra("expires_in").(float64); ok && v > 0 {
		ts.ExpiresIn = int64(v)
	} else if !tok.Expiry.IsZero() {
		ts.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	if s, ok := tok.Extra("scope").(string); ok {
		ts.Scope = s
	}
	return ts
}

type userEnvelope struct {
	Data struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		ProfileImageURL string `json:"profile_image_url"`
		Description     string `json:"description"`
	} `json:"data"`
}

// FetchUser retrieves the authenticated user's profile with the access token
// as a bearer credential.
func (p *XProvider) FetchUser(ctx context.Context, accessToken string) (Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	u, err := url.Parse(p.userURL)
	if err != nil {
		return Identity{}, fmt.Errorf("user endpoint: %w", err)
	}
	q := u.Query()
	q.Set("user.fields", "profile_image_url,description")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("fetch user: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, fmt.Errorf("read user response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Error("user fetch rejected", "status", resp.StatusCode, "body", string(body))
		return Identity{}, fmt.Errorf("fetch user: status %d", resp.StatusCode)
	}

	var envelope userEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Identity{}, fmt.Errorf("parse user response: %w", err)
	}
	if envelope.Data.ID == "" {
		return Identity{}, errors.New("user response missing id")
	}

	return Identity{
		ID:        envelope.Data.ID,
		Name:      envelope.Data.Name,
		Username:  envelope.Data.Username,
		AvatarURL: envelope.Data.ProfileImageURL,
		Bio:       envelope.Data.Description,
	}, nil
}
