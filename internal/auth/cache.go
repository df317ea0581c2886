package auth

import (
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"time"
)

// defaultCacheEntries bounds how many verified keys are remembered.
const defaultCacheEntries = 10_000

type keyDigest [sha256.Size]byte

func digestOf(apiKey string) keyDigest {
	return sha256.Sum256([]byte(apiKey))
}

// verifiedKey is immutable apart from the refresh claim.
type verifiedKey struct {
	principal *Principal
	staleAt   time.Time
	claimed   atomic.Bool
}

// keyCache remembers verified API keys by SHA-256 digest, so bcrypt runs once
// per key per TTL and plaintext keys are never retained.
//
// A stale entry keeps being served. The first caller to see it stale claims
// the re-verification.
type keyCache struct {
	mu      sync.RWMutex
	entries map[keyDigest]*verifiedKey
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func newKeyCache(ttl time.Duration) *keyCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &keyCache{
		entries: make(map[keyDigest]*verifiedKey),
		ttl:     ttl,
		max:     defaultCacheEntries,
		now:     time.Now,
	}
}

// lookup returns the remembered principal for apiKey. refresh is true for
// exactly one caller per stale entry.
func (c *keyCache) lookup(apiKey string) (p *Principal, refresh, ok bool) {
	c.mu.RLock()
	v, ok := c.entries[digestOf(apiKey)]
	c.mu.RUnlock()
	if !ok {
		return nil, false, false
	}
	if c.now().Before(v.staleAt) {
		return v.principal, false, true
	}
	return v.principal, v.claimed.CompareAndSwap(false, true), true
}

// remember stores a freshly verified principal, replacing any stale entry
// and releasing its refresh claim.
func (c *keyCache) remember(apiKey string, p *Principal) {
	d := digestOf(apiKey)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[d]; !exists && len(c.entries) >= c.max {
		c.evictLocked(now)
	}
	c.entries[d] = &verifiedKey{principal: p, staleAt: now.Add(c.ttl)}
}

func (c *keyCache) forget(apiKey string) {
	c.mu.Lock()
	delete(c.entries, digestOf(apiKey))
	c.mu.Unlock()
}

func (c *keyCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLocked drops stale entries first. If every entry is fresh it drops
// half of them, which only happens under a flood of distinct valid keys.
func (c *keyCache) evictLocked(now time.Time) {
	for d, v := range c.entries {
		if !now.Before(v.staleAt) {
			delete(c.entries, d)
		}
	}
	if len(c.entries) < c.max {
		return
	}
	drop := len(c.entries) / 2
	for d := range c.entries {
		if drop == 0 {
			break
		}
		delete(c.entries, d)
		drop--
	}
}
