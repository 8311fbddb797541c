package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore is a single process store. Records expire with their window.
type MemoryStore struct {
	mu      sync.Mutex
	records *cache.Cache
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store that sweeps expired records every cleanup interval.
func NewMemoryStore(cleanup time.Duration, now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		records: cache.New(cache.NoExpiration, cleanup),
		now:     now,
	}
}

// Hit implements Store.
func (s *MemoryStore) Hit(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec Record
	if v, ok := s.records.Get(key); ok {
		rec = v.(Record)
	}

	now := s.now().Unix()
	rec = advance(rec, now, window)
	s.records.Set(key, rec, time.Duration(rec.Reset-now+1)*time.Second)

	return evaluate(rec, now, max), nil
}

// Prune drops expired records and reports how many were removed.
func (s *MemoryStore) Prune(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.records.ItemCount()
	s.records.DeleteExpired()
	return before - s.records.ItemCount(), nil
}
