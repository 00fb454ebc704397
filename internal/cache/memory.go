package cache

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryStorage is an in-memory Storage for testing.
type MemoryStorage struct {
	blobs map[string][]byte
	mu    sync.RWMutex
	// FailWrites, when set, is returned by Write and Delete.
	FailWrites error
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: make(map[string][]byte)}
}

// Location returns a fixed description.
func (s *MemoryStorage) Location() string {
	return "memory"
}

// Read returns a copy of the blob for key.
func (s *MemoryStorage) Read(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Write stores a copy of data.
func (s *MemoryStorage) Write(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

// Delete removes key if present.
func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}
	delete(s.blobs, key)
	return nil
}

// ListKeys returns all keys in sorted order.
func (s *MemoryStorage) ListKeys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.blobs))
	for k := range s.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Has reports whether key is stored (for testing).
func (s *MemoryStorage) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok
}

// Seed stores blobs directly (for testing).
func (s *MemoryStorage) Seed(blobs map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range blobs {
		s.blobs[k] = append([]byte(nil), v...)
	}
}
