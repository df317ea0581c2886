package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// mockKeyStore implements KeyStore for testing.
type mockKeyStore struct {
	records   []KeyRecord
	err       atomic.Pointer[error]
	callCount atomic.Int32
	prefixes  chan string
}

func (m *mockKeyStore) LookupByPrefix(_ context.Context, prefix string) ([]KeyRecord, error) {
	m.callCount.Add(1)
	if m.prefixes != nil {
		m.prefixes <- prefix
	}
	if e := m.err.Load(); e != nil {
		return nil, *e
	}
	return m.records, nil
}

func (m *mockKeyStore) fail(err error) { m.err.Store(&err) }

func TestStoreAuth_CacheMiss_ValidKey(t *testing.T) {
	store := &mockKeyStore{
		records: []KeyRecord{
			{ID: "1", Name: "ci", Hash: testHash(t, "wdn_test_other_key")},
			{ID: "2", Name: "gateway", Hash: testHash(t, testAPIKey)},
		},
		prefixes: make(chan string, 1),
	}
	a := NewStoreAuthenticator(store, time.Minute, zap.NewNop())

	p, err := a.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if p.KeyID != "2" || p.Name != "gateway" {
		t.Errorf("principal = %+v", p)
	}
	if got := <-store.prefixes; got != testAPIKey[:PrefixLength] {
		t.Errorf("looked up prefix %q", got)
	}
}

func TestStoreAuth_CacheHit_NoStoreCall(t *testing.T) {
	store := &mockKeyStore{records: []KeyRecord{{ID: "1", Hash: testHash(t, testAPIKey)}}}
	a := NewStoreAuthenticator(store, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := a.Authenticate(context.Background(), testAPIKey); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if n := store.callCount.Load(); n != 1 {
		t.Errorf("expected 1 store call, got %d", n)
	}
}

func TestStoreAuth_WrongKey(t *testing.T) {
	store := &mockKeyStore{records: []KeyRecord{{ID: "1", Hash: testHash(t, testAPIKey)}}}
	a := NewStoreAuthenticator(store, time.Minute, zap.NewNop())

	_, err := a.Authenticate(context.Background(), "wdn_test_WRONG_key_000")
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestStoreAuth_UnknownPrefix(t *testing.T) {
	a := NewStoreAuthenticator(&mockKeyStore{}, time.Minute, zap.NewNop())

	_, err := a.Authenticate(context.Background(), testAPIKey)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestStoreAuth_StoreErrorIsUnavailable(t *testing.T) {
	store := &mockKeyStore{}
	store.fail(errors.New("connection refused"))
	a := NewStoreAuthenticator(store, time.Minute, zap.NewNop())

	_, err := a.Authenticate(context.Background(), testAPIKey)
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Errorf("expected ErrAuthUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidAPIKey) {
		t.Error("store outage must not look like a bad key")
	}
}

func TestStoreAuth_StaleServedThenRefreshFailureEvicts(t *testing.T) {
	store := &mockKeyStore{records: []KeyRecord{{ID: "1", Hash: testHash(t, testAPIKey)}}}
	cache, now := clockedCache(time.Minute)
	a := newStoreAuthenticator(store, cache, zap.NewNop())

	if _, err := a.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatal(err)
	}

	*now = now.Add(2 * time.Minute)
	store.fail(errors.New("db down"))

	// The stale principal is served immediately while the refresh runs.
	p, err := a.Authenticate(context.Background(), testAPIKey)
	if err != nil || p.KeyID != "1" {
		t.Fatalf("stale read = %+v, %v", p, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for cached(cache, testAPIKey) {
		if time.Now().After(deadline) {
			t.Fatal("failed refresh did not evict the entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
