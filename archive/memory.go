package archive

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process content-addressed store keyed by sha256.
// It backs tests and local development where no IPFS node is running.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, data []byte) (string, error) {
	address := HashBytes(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[address]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		s.records[address] = stored
	}
	return address, nil
}

func (s *MemoryStore) Get(_ context.Context, address string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.records[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Len reports the number of distinct records held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
