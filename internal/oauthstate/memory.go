package oauthstate

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps states in process. Replicas do not share it.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Put records state. Expired entries are pruned on the way.
func (s *MemoryStore) Put(_ context.Context, state string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, k)
		}
	}
	if _, ok := s.entries[state]; ok {
		return false, nil
	}
	s.entries[state] = now.Add(ttl)
	return true, nil
}

// Take removes state and reports whether it was present and unexpired.
func (s *MemoryStore) Take(_ context.Context, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.entries[state]
	if !ok {
		return false, nil
	}
	delete(s.entries, state)
	return s.now().Before(exp), nil
}

var _ Store = (*MemoryStore)(nil)
