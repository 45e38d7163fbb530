package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
)

// MemoryStore keeps the newest window per key in process memory. Counters are
// not shared between instances.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*models.RateLimitEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*models.RateLimitEntry)}
}

func key(identifier, endpoint string) string {
	return endpoint + "|" + identifier
}

func (s *MemoryStore) FindActive(_ context.Context, identifier, endpoint string, since time.Time) (*models.RateLimitEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key(identifier, endpoint)]
	if !ok || e.WindowStart.Before(since) {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, e *models.RateLimitEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.entries[key(e.Identifier, e.Endpoint)] = &cp
	return nil
}

func (s *MemoryStore) Increment(_ context.Context, e *models.RateLimitEntry, at time.Time, max int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[key(e.Identifier, e.Endpoint)]
	if !ok || !cur.WindowStart.Equal(e.WindowStart) || cur.RequestCount >= max {
		return false, nil
	}
	cur.RequestCount++
	cur.LastRequest = at
	return true, nil
}

func (s *MemoryStore) Purge(_ context.Context, endpoint string, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if e.Endpoint == endpoint && e.LastRequest.Before(before) {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *MemoryStore) Reset(_ context.Context, identifier, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key(identifier, endpoint))
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
