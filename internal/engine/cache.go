package engine

import (
	"container/list"
	"sync"
	"time"
)

const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 5 * time.Minute
)

// CacheEntry is a memoized evaluation of one fingerprint.
type CacheEntry struct {
	Findings  []Finding
	Severity  Severity
	Timestamp time.Time
}

// ResultCache memoizes evaluations by fingerprint. Implementations must be
// safe for concurrent use; expired entries are reported as absent.
type ResultCache interface {
	Get(key string) (CacheEntry, bool)
	Set(key string, entry CacheEntry)
}

type lruItem struct {
	key   string
	entry CacheEntry
}

// LRUCache is a bounded, TTL-expiring ResultCache with recency-based eviction.
type LRUCache struct {
	mu    sync.Mutex
	size  int
	ttl   time.Duration
	ll    *list.List
	items map[string]*list.Element
	now   func() time.Time
}

// NewLRUCache creates a cache holding at most size entries for ttl each.
// Non-positive values fall back to the defaults.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &LRUCache{
		size:  size,
		ttl:   ttl,
		ll:    list.New(),
		items: make(map[string]*list.Element, size),
		now:   time.Now,
	}
}

// Get returns the entry for key if present and younger than the TTL.
func (c *LRUCache) Get(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return CacheEntry{}, false
	}
	item := el.Value.(*lruItem)
	if c.now().Sub(item.entry.Timestamp) >= c.ttl {
		c.removeElement(el)
		return CacheEntry{}, false
	}
	c.ll.MoveToFront(el)
	return item.entry, true
}

// Set stores entry under key, evicting the least recently used entry when
// the cache is full. A zero Timestamp is set to now.
func (c *LRUCache) Set(key string, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = c.now()
	}
	if el, ok := c.items[key]; ok {
		el.Value.(*lruItem).entry = entry
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&lruItem{key: key, entry: entry})
	for c.ll.Len() > c.size {
		c.removeElement(c.ll.Back())
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Purge removes every entry.
func (c *LRUCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element, c.size)
}

func (c *LRUCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*lruItem).key)
}
