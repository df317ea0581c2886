package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// KeyRecord is a stored, unrevoked API key.
type KeyRecord struct {
	ID   string
	Name string
	Hash string
}

// KeyStore looks up candidate keys by their clear prefix.
type KeyStore interface {
	LookupByPrefix(ctx context.Context, prefix string) ([]KeyRecord, error)
}

// NewStoreAuthenticator verifies keys against a KeyStore. Unknown prefixes
// are rejected; store errors surface as ErrAuthUnavailable and are never
// treated as success.
func NewStoreAuthenticator(store KeyStore, ttl time.Duration, logger *zap.Logger) Authenticator {
	return newStoreAuthenticator(store, newKeyCache(ttl), logger)
}

func newStoreAuthenticator(store KeyStore, cache *keyCache, logger *zap.Logger) *cachedAuthenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	verify := func(ctx context.Context, apiKey string) (*Principal, error) {
		if len(apiKey) < PrefixLength {
			return nil, ErrInvalidAPIKey
		}
		records, err := store.LookupByPrefix(ctx, apiKey[:PrefixLength])
		if err != nil {
			return nil, fmt.Errorf("LookupByPrefix: %w", err)
		}
		for _, r := range records {
			if bcrypt.CompareHashAndPassword([]byte(r.Hash), []byte(apiKey)) == nil {
				return &Principal{KeyID: r.ID, Name: r.Name}, nil
			}
		}
		return nil, ErrInvalidAPIKey
	}
	return &cachedAuthenticator{verify: verify, cache: cache, logger: logger}
}
