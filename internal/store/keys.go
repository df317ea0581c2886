package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/triage-ai/warden/internal/auth"
)

// KeyStore manages API keys. It implements auth.KeyStore.
type KeyStore struct {
	s *Store
}

// Keys returns the API key view of s.
func (s *Store) Keys() *KeyStore {
	return &KeyStore{s: s}
}

// CreateAPIKey stores a new key and returns its id and plaintext, which is
// shown to the operator once.
func (k *KeyStore) CreateAPIKey(ctx context.Context, name string) (id string, key string, err error) {
	key, hash, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		return "", "", fmt.Errorf("CreateAPIKey: %w", err)
	}
	var n int64
	err = k.s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (name, key_prefix, key_hash) VALUES ($1, $2, $3) RETURNING id`,
		name, prefix, hash,
	).Scan(&n)
	if err != nil {
		return "", "", fmt.Errorf("CreateAPIKey: %w", err)
	}
	return strconv.FormatInt(n, 10), key, nil
}

// RevokeAPIKey marks a key revoked. It reports whether a live key matched.
func (k *KeyStore) RevokeAPIKey(ctx context.Context, id string) (bool, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false, fmt.Errorf("RevokeAPIKey: bad id %q: %w", id, err)
	}
	tag, err := k.s.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, n)
	if err != nil {
		return false, fmt.Errorf("RevokeAPIKey: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (k *KeyStore) LookupByPrefix(ctx context.Context, prefix string) ([]auth.KeyRecord, error) {
	rows, err := k.s.pool.Query(ctx,
		`SELECT id::text, name, key_hash FROM api_keys WHERE key_prefix = $1 AND revoked_at IS NULL`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	defer rows.Close()

	var out []auth.KeyRecord
	for rows.Next() {
		var r auth.KeyRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Hash); err != nil {
			return nil, fmt.Errorf("LookupByPrefix: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
