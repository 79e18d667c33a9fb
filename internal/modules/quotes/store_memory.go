package quotes

import (
	"sync"
	"time"

	"github.com/aristath/quotegate/internal/domain"
)

// MemoryStore is a process-lifetime in-memory cache store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]CacheEntry)}
}

// Load returns the entry for key, or (nil, nil) when absent.
func (s *MemoryStore) Load(key string) (*CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Save upserts the entry for key.
func (s *MemoryStore) Save(key string, rec *domain.Record, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = CacheEntry{Key: key, Timestamp: ts, Record: *rec}
	return nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
