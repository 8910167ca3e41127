package postgres

import (
	"context"

	"market-data-pipeline/internal/storage"
)

// StateStore is a PostgreSQL implementation of
// storage.ReplicationStateStore. Uses two tables:
//   - replication_watermarks: one row per table (table_name, watermark_ms)
//   - replication_flags: named boolean flags (bootstrap_done)
type StateStore struct {
	pool *Pool
}

// NewStateStore creates a new PostgreSQL replication state store.
func NewStateStore(pool *Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReplicationStateStore = (*StateStore)(nil)

// EnsureSchema creates the state tables if they do not exist.
func (s *StateStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS replication_watermarks (
			table_name   TEXT PRIMARY KEY,
			watermark_ms BIGINT NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS replication_flags (
			name       TEXT PRIMARY KEY,
			value      BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// GetWatermark returns the watermark for a table.
func (s *StateStore) GetWatermark(ctx context.Context, table string) (int64, error) {
	if table == "" {
		return 0, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT watermark_ms
		FROM replication_watermarks
		WHERE table_name = $1
	`, table)

	var ts int64
	if err := row.Scan(&ts); err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, err
	}
	return ts, nil
}

// SetWatermark saves the watermark for a table.
// Uses upsert to handle initial insert and subsequent updates.
func (s *StateStore) SetWatermark(ctx context.Context, table string, tsMs int64) error {
	if table == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO replication_watermarks (table_name, watermark_ms, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (table_name) DO UPDATE
		SET watermark_ms = EXCLUDED.watermark_ms,
		    updated_at = NOW()
	`, table, tsMs)

	return err
}

// BootstrapDone reports whether bootstrap seeding has completed.
func (s *StateStore) BootstrapDone(ctx context.Context) (bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT value FROM replication_flags WHERE name = 'bootstrap_done'
	`)

	var done bool
	if err := row.Scan(&done); err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return done, nil
}

// SetBootstrapDone marks bootstrap seeding complete.
func (s *StateStore) SetBootstrapDone(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replication_flags (name, value, updated_at)
		VALUES ('bootstrap_done', TRUE, NOW())
		ON CONFLICT (name) DO UPDATE
		SET value = TRUE,
		    updated_at = NOW()
	`)
	return err
}
