// Package memory provides in-memory storage implementations for tests.
package memory

import (
	"context"
	"sync"

	"market-data-pipeline/internal/storage"
)

// StateStore is an in-memory implementation of storage.ReplicationStateStore.
type StateStore struct {
	mu         sync.RWMutex
	watermarks map[string]int64
	bootstrap  bool
}

// Compile-time interface check.
var _ storage.ReplicationStateStore = (*StateStore)(nil)

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{watermarks: make(map[string]int64)}
}

// GetWatermark returns the watermark for a table.
func (s *StateStore) GetWatermark(_ context.Context, table string) (int64, error) {
	if table == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, ok := s.watermarks[table]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return ts, nil
}

// SetWatermark saves the watermark for a table.
func (s *StateStore) SetWatermark(_ context.Context, table string, tsMs int64) error {
	if table == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.watermarks[table] = tsMs
	return nil
}

// BootstrapDone reports whether bootstrap seeding has completed.
func (s *StateStore) BootstrapDone(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bootstrap, nil
}

// SetBootstrapDone marks bootstrap seeding complete.
func (s *StateStore) SetBootstrapDone(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootstrap = true
	return nil
}
