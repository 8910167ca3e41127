package storage

import "context"

// HotWriter performs bulk inserts into a hot table. One call covers one
// flush; it fails atomically from the caller's perspective, so the
// caller may requeue the whole batch on error. Duplicate rows after a
// retried partial write are tolerated by the append-only tables.
type HotWriter interface {
	// InsertRows inserts cleaned column->value maps into table as a
	// single multi-row statement.
	InsertRows(ctx context.Context, table string, rows []map[string]any) error
}

// Archiver executes the windowed hot-to-cold operations for one
// hot/cold table pair. All time bounds are epoch milliseconds over the
// table's time column, half-open [startMs, endMs).
type Archiver interface {
	// CopyWindow copies hot rows in the window into the cold table.
	// Re-runnable: a repeated copy may duplicate rows but never loses any.
	CopyWindow(ctx context.Context, table string, startMs, endMs int64) error

	// SourceCount counts hot rows in the window.
	SourceCount(ctx context.Context, table string, startMs, endMs int64) (uint64, error)

	// DestCount counts cold rows in the window.
	DestCount(ctx context.Context, table string, startMs, endMs int64) (uint64, error)

	// SourceMaxTimestamp returns the newest hot timestamp in epoch
	// milliseconds, or 0 when the table is empty.
	SourceMaxTimestamp(ctx context.Context, table string) (int64, error)

	// DestTotalCount counts all cold rows, used by bootstrap seeding.
	DestTotalCount(ctx context.Context, table string) (uint64, error)

	// DeleteSourceBefore removes hot rows older than cutoffMs. Only
	// called after a fresh dest>=source verification of that range.
	DeleteSourceBefore(ctx context.Context, table string, cutoffMs int64) error
}

// ReplicationStateStore persists the per-table watermark map and the
// one-time bootstrap flag. The replicator is the sole reader and writer.
type ReplicationStateStore interface {
	// GetWatermark returns the last confirmed-replicated timestamp in
	// epoch milliseconds. Returns ErrNotFound when the table has no
	// watermark yet.
	GetWatermark(ctx context.Context, table string) (int64, error)

	// SetWatermark persists the watermark for a table. Watermarks are
	// monotonically non-decreasing; callers never pass a lower value.
	SetWatermark(ctx context.Context, table string, tsMs int64) error

	// BootstrapDone reports whether bootstrap seeding has completed.
	BootstrapDone(ctx context.Context) (bool, error)

	// SetBootstrapDone marks bootstrap seeding complete.
	SetBootstrapDone(ctx context.Context) error
}
