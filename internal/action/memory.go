package action

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process OffenderStore. Violations older than maxAge
// are discarded as new ones arrive.
type MemoryStore struct {
	mu     sync.Mutex
	maxAge time.Duration
	users  map[string][]time.Time
}

// NewMemoryStore keeps violations for maxAge.
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	return &MemoryStore{maxAge: maxAge, users: make(map[string][]time.Time)}
}

func (s *MemoryStore) RecordViolation(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = append(prune(s.users[userID], at.Add(-s.maxAge)), at)
	return nil
}

func (s *MemoryStore) CountViolations(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.users[userID] {
		if !t.Before(since) {
			n++
		}
	}
	return n, nil
}

// Sweep forgets users with no violation newer than now - maxAge.
func (s *MemoryStore) Sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.maxAge)
	for id, ts := range s.users {
		if kept := prune(ts, cutoff); len(kept) == 0 {
			delete(s.users, id)
		} else {
			s.users[id] = kept
		}
	}
}

// Users returns the number of users with retained violations.
func (s *MemoryStore) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// prune drops timestamps before cutoff. ts is in ascending order.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}
