// Package file persists replication state as a single JSON document,
// replaced atomically via write-temp-then-rename so a crash can never
// leave a partially written file behind.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"market-data-pipeline/internal/storage"
)

// bootstrapKey is the reserved key holding the bootstrap-done flag
// alongside the table watermarks.
const bootstrapKey = "__bootstrap_done"

// StateStore is the file-backed storage.ReplicationStateStore. The
// replicator is its only client, so a single mutex is enough.
type StateStore struct {
	path string

	mu    sync.Mutex
	state map[string]json.RawMessage
}

// Compile-time interface check.
var _ storage.ReplicationStateStore = (*StateStore)(nil)

// NewStateStore loads (or initializes) the state file at path.
func NewStateStore(path string) (*StateStore, error) {
	s := &StateStore{path: path, state: make(map[string]json.RawMessage)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.state); err != nil {
			return nil, fmt.Errorf("parse state file %s: %w", path, err)
		}
	}
	return s, nil
}

// GetWatermark returns the persisted watermark for a table.
func (s *StateStore) GetWatermark(_ context.Context, table string) (int64, error) {
	if table == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.state[table]
	if !ok {
		return 0, storage.ErrNotFound
	}

	var ts int64
	if err := json.Unmarshal(raw, &ts); err != nil {
		return 0, fmt.Errorf("parse watermark for %s: %w", table, err)
	}
	return ts, nil
}

// SetWatermark persists the watermark for a table.
func (s *StateStore) SetWatermark(_ context.Context, table string, tsMs int64) error {
	if table == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(tsMs)
	if err != nil {
		return err
	}
	s.state[table] = raw
	return s.flushLocked()
}

// BootstrapDone reports whether bootstrap seeding has completed.
func (s *StateStore) BootstrapDone(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.state[bootstrapKey]
	if !ok {
		return false, nil
	}

	var done bool
	if err := json.Unmarshal(raw, &done); err != nil {
		return false, fmt.Errorf("parse bootstrap flag: %w", err)
	}
	return done, nil
}

// SetBootstrapDone marks bootstrap seeding complete.
func (s *StateStore) SetBootstrapDone(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state[bootstrapKey] = json.RawMessage("true")
	return s.flushLocked()
}

// flushLocked writes the state to a temp file in the same directory and
// renames it over the target. Caller holds mu.
func (s *StateStore) flushLocked() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
