package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-jose/go-jose/v3"
)

const sessionKeyFile = "session.jwk"

// SessionKey is the symmetric key used to sign session cookies.
type SessionKey struct {
	Secret []byte
	KeyID  string
}

// LoadSessionKey loads the signing key from the secrets directory, creating
// and persisting a fresh one on first run.
func LoadSessionKey(secretsPath string, logger *slog.Logger) (*SessionKey, error) {
	path := filepath.Join(secretsPath, sessionKeyFile)

	payload, err := os.ReadFile(path)
	if err == nil {
		key, err := parseSessionKey(payload)
		if err != nil {
			return nil, fmt.Errorf("parse session key %s: %w", path, err)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read session key: %w", err)
	}

	key, err := newSessionKey()
	if err != nil {
		return nil, err
	}
	if err := persistSessionKey(path, key); err != nil {
		return nil, err
	}
	logger.Info("session signing key created", "path", path, "kid", key.KeyID)
	return key, nil
}

func newSessionKey() (*SessionKey, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	return &SessionKey{Secret: secret, KeyID: randomKID()}, nil
}

func parseSessionKey(payload []byte) (*SessionKey, error) {
	var jwk jose.JSONWebKey
	if err := json.Unmarshal(payload, &jwk); err != nil {
		return nil, err
	}
	secret, ok := jwk.Key.([]byte)
	if !ok || len(secret) == 0 {
		return nil, errors.New("not a symmetric key")
	}
	return &SessionKey{Secret: secret, KeyID: jwk.KeyID}, nil
}

func persistSessionKey(path string, key *SessionKey) error {
	jwk := jose.JSONWebKey{
		Key:       key.Secret,
		KeyID:     key.KeyID,
		Algorithm: string(jose.HS256),
		Use:       "sig",
	}
	payload, err := json.MarshalIndent(jwk, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func randomKID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "kid"
	}
	return hex.EncodeToString(buf)
}
