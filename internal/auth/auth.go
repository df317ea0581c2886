// Package auth authenticates HTTP callers by API key. Keys are wdn_
// prefixed random tokens; only their bcrypt hashes are stored.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingAPIKey   = errors.New("auth: missing API key")
	ErrInvalidAPIKey   = errors.New("auth: invalid API key")
	ErrAuthUnavailable = errors.New("auth: key store unavailable")
)

const (
	// KeyPrefix starts every API key.
	KeyPrefix = "wdn_"
	// PrefixLength is how many leading characters are stored in clear
	// for lookup.
	PrefixLength = 8

	DefaultCacheTTL = 30 * time.Second
)

// Principal is the authenticated caller.
type Principal struct {
	KeyID string
	Name  string
}

// Authenticator validates an API key.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*Principal, error)
}

// ExtractAPIKey pulls the key out of an Authorization header value. The
// Bearer scheme is optional and case-insensitive.
func ExtractAPIKey(header string) (string, error) {
	token := strings.TrimSpace(header)
	if token == "" {
		return "", ErrMissingAPIKey
	}
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if !strings.HasPrefix(token, KeyPrefix) || len(token) < PrefixLength {
		return "", ErrInvalidAPIKey
	}
	return token, nil
}

// GenerateAPIKey creates a new key with its bcrypt hash and lookup prefix.
// The key itself is shown to the operator once and never stored.
func GenerateAPIKey() (key, hash, prefix string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	key = KeyPrefix + hex.EncodeToString(raw)

	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	return key, string(h), key[:PrefixLength], nil
}

// verifyFunc performs the expensive check behind the cache.
type verifyFunc func(ctx context.Context, apiKey string) (*Principal, error)

// cachedAuthenticator fronts a verifyFunc with a stale-while-revalidate
// cache, so bcrypt runs once per key per TTL and never on a warm path.
type cachedAuthenticator struct {
	verify verifyFunc
	cache  *keyCache
	logger *zap.Logger
}

func (a *cachedAuthenticator) Authenticate(ctx context.Context, apiKey string) (*Principal, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	if p, refresh, ok := a.cache.lookup(apiKey); ok {
		if refresh {
			go a.backgroundRefresh(apiKey)
		}
		return p, nil
	}

	p, err := a.verify(ctx, apiKey)
	if err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return nil, ErrInvalidAPIKey
		}
		a.logger.Warn("api key verification failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
	}
	a.cache.remember(apiKey, p)
	return p, nil
}

// backgroundRefresh re-verifies a stale key. On failure the entry is
// dropped so the next request verifies synchronously.
func (a *cachedAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := a.verify(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		a.cache.forget(apiKey)
		return
	}
	a.cache.remember(apiKey, p)
}

// NewHashAuthenticator accepts any key matching one of the bcrypt hashes,
// typically from server.api_key_hashes.
func NewHashAuthenticator(hashes []string, ttl time.Duration, logger *zap.Logger) Authenticator {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hs := make([][]byte, len(hashes))
	for i, h := range hashes {
		hs[i] = []byte(h)
	}
	verify := func(_ context.Context, apiKey string) (*Principal, error) {
		for i, h := range hs {
			if bcrypt.CompareHashAndPassword(h, []byte(apiKey)) == nil {
				return &Principal{KeyID: fmt.Sprintf("static-%d", i), Name: "config"}, nil
			}
		}
		return nil, ErrInvalidAPIKey
	}
	return &cachedAuthenticator{verify: verify, cache: newKeyCache(ttl), logger: logger}
}
