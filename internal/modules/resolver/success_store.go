package resolver

import "sync"

// MemorySuccessStore is the default in-process learned-success map. Growth is
// unbounded; cardinality stays small in practice (one entry per instrument
// the process ever resolved) and lifetime equals process lifetime.
type MemorySuccessStore struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemorySuccessStore creates an empty learned-success store.
func NewMemorySuccessStore() *MemorySuccessStore {
	return &MemorySuccessStore{m: make(map[string]string)}
}

// Get returns the memoized symbol for key.
func (s *MemorySuccessStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	symbol, ok := s.m[key]
	return symbol, ok
}

// Put records symbol for key, overwriting any previous mapping.
func (s *MemorySuccessStore) Put(key, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = symbol
}

// Len reports the number of learned mappings.
func (s *MemorySuccessStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
