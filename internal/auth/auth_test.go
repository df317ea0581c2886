package auth

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testAPIKey = "wdn_test_valid_key_1234567890abcdef"

func testHash(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"bearer", "Bearer " + testAPIKey, testAPIKey, nil},
		{"lowercase bearer", "bearer " + testAPIKey, testAPIKey, nil},
		{"bare key", testAPIKey, testAPIKey, nil},
		{"padded", "  Bearer   " + testAPIKey + " ", testAPIKey, nil},
		{"empty", "", "", ErrMissingAPIKey},
		{"whitespace", "   ", "", ErrMissingAPIKey},
		{"wrong prefix", "Bearer sk_live_1234567890", "", ErrInvalidAPIKey},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", ErrInvalidAPIKey},
		{"too short", "wdn_", "", ErrInvalidAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractAPIKey(tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(key, KeyPrefix) || len(key) != len(KeyPrefix)+64 {
		t.Errorf("unexpected key shape %q", key)
	}
	if prefix != key[:PrefixLength] {
		t.Errorf("prefix = %q, want %q", prefix, key[:PrefixLength])
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		t.Errorf("hash does not match key: %v", err)
	}

	other, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if other == key {
		t.Error("two generated keys are identical")
	}
}

func TestHashAuthenticator(t *testing.T) {
	a := NewHashAuthenticator([]string{testHash(t, "wdn_other_key_000000"), testHash(t, testAPIKey)}, time.Minute, zap.NewNop())

	p, err := a.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.KeyID != "static-1" {
		t.Errorf("KeyID = %q, want static-1", p.KeyID)
	}

	if _, err := a.Authenticate(context.Background(), "wdn_not_a_configured_key"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("unknown key err = %v, want ErrInvalidAPIKey", err)
	}
	if _, err := a.Authenticate(context.Background(), ""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("empty key err = %v, want ErrMissingAPIKey", err)
	}
}

func TestHashAuthenticator_CachesSuccessOnly(t *testing.T) {
	var calls atomic.Int32
	ca := &cachedAuthenticator{
		verify: func(_ context.Context, key string) (*Principal, error) {
			calls.Add(1)
			if key == testAPIKey {
				return &Principal{KeyID: "k"}, nil
			}
			return nil, ErrInvalidAPIKey
		},
		cache:  newKeyCache(time.Minute),
		logger: zap.NewNop(),
	}

	for i := 0; i < 3; i++ {
		if _, err := ca.Authenticate(context.Background(), testAPIKey); err != nil {
			t.Fatal(err)
		}
		_, _ = ca.Authenticate(context.Background(), "wdn_bad_key_123")
	}
	// 1 for the good key, 3 for the bad one.
	if n := calls.Load(); n != 4 {
		t.Errorf("verify calls = %d, want 4", n)
	}
}
