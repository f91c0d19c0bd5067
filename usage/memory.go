package usage

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Counts reset on restart, so it is
// suitable for development and single-instance deployments only; use
// RedisStore behind a load balancer.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int)}
}

func (s *MemoryStore) Get(_ context.Context, wallet string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[wallet], nil
}

func (s *MemoryStore) Increment(_ context.Context, wallet string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[wallet]++
	return s.counts[wallet], nil
}

func (s *MemoryStore) Reset(_ context.Context, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, wallet)
	return nil
}
