package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"market-data-pipeline/internal/schema"
	"market-data-pipeline/internal/storage"
)

// RemoteRef points the copy at a hot instance that is physically
// separate from the cold one. Copies then pull through the remote()
// table function so a single cold-side connection drives the window.
type RemoteRef struct {
	Addr     string // host:port of the hot instance native interface
	User     string
	Password string
}

// ArchiveOptions configures an Archive.
type ArchiveOptions struct {
	// Hot is the connection to the hot instance, used for source
	// counts, max-timestamp probes, and cleanup deletes.
	Hot *Conn
	// Cold is the connection executing copies and destination counts.
	// In single-instance mode Hot and Cold may be the same connection.
	Cold *Conn
	// HotDatabase and ColdDatabase name the two databases.
	HotDatabase  string
	ColdDatabase string
	// Remote is set when hot and cold live on different instances.
	Remote *RemoteRef
}

// Archive implements storage.Archiver on ClickHouse.
type Archive struct {
	hot    *Conn
	cold   *Conn
	hotDB  string
	coldDB string
	remote *RemoteRef
}

// NewArchive creates an archive for the given hot/cold pair.
func NewArchive(opts ArchiveOptions) (*Archive, error) {
	if opts.Hot == nil || opts.Cold == nil {
		return nil, fmt.Errorf("archive requires hot and cold connections")
	}
	if opts.HotDatabase == "" || opts.ColdDatabase == "" {
		return nil, fmt.Errorf("archive requires hot and cold database names")
	}
	return &Archive{
		hot:    opts.Hot,
		cold:   opts.Cold,
		hotDB:  opts.HotDatabase,
		coldDB: opts.ColdDatabase,
		remote: opts.Remote,
	}, nil
}

// Compile-time interface check.
var _ storage.Archiver = (*Archive)(nil)

// sourceRef renders the hot table reference as seen from the cold
// connection.
func (a *Archive) sourceRef(table string) string {
	if a.remote != nil {
		return fmt.Sprintf("remote('%s', '%s.%s', '%s', '%s')",
			a.remote.Addr, a.hotDB, table, a.remote.User, a.remote.Password)
	}
	return fmt.Sprintf("%s.%s", a.hotDB, table)
}

func timeFilter(timeColumn string) string {
	return fmt.Sprintf("%s >= fromUnixTimestamp64Milli(?) AND %s < fromUnixTimestamp64Milli(?)",
		timeColumn, timeColumn)
}

// CopyWindow copies hot rows in [startMs, endMs) into the cold table.
// Re-runnable: duplicates are tolerated by the append-only tables.
func (a *Archive) CopyWindow(ctx context.Context, table string, startMs, endMs int64) error {
	tbl, ok := schema.ForTableName(table)
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	cols := strings.Join(tbl.ColumnNames(), ", ")

	query := fmt.Sprintf(
		"INSERT INTO %s.%s (%s) SELECT %s FROM %s WHERE %s",
		a.coldDB, table, cols, cols, a.sourceRef(table), timeFilter(tbl.TimeColumn),
	)
	if err := a.cold.Exec(ctx, query, startMs, endMs); err != nil {
		return fmt.Errorf("copy window %s [%d,%d): %w", table, startMs, endMs, err)
	}
	return nil
}

// SourceCount counts hot rows in the window, directly on the hot
// connection so the verify step observes the source independently.
func (a *Archive) SourceCount(ctx context.Context, table string, startMs, endMs int64) (uint64, error) {
	tbl, ok := schema.ForTableName(table)
	if !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	query := fmt.Sprintf("SELECT count() FROM %s.%s WHERE %s", a.hotDB, table, timeFilter(tbl.TimeColumn))
	n, err := a.hot.QueryUInt64(ctx, query, startMs, endMs)
	if err != nil {
		return 0, fmt.Errorf("count source %s: %w", table, err)
	}
	return n, nil
}

// DestCount counts cold rows in the window.
func (a *Archive) DestCount(ctx context.Context, table string, startMs, endMs int64) (uint64, error) {
	tbl, ok := schema.ForTableName(table)
	if !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	query := fmt.Sprintf("SELECT count() FROM %s.%s WHERE %s", a.coldDB, table, timeFilter(tbl.TimeColumn))
	n, err := a.cold.QueryUInt64(ctx, query, startMs, endMs)
	if err != nil {
		return 0, fmt.Errorf("count dest %s: %w", table, err)
	}
	return n, nil
}

// SourceMaxTimestamp returns the newest hot timestamp in epoch
// milliseconds, or 0 for an empty table.
func (a *Archive) SourceMaxTimestamp(ctx context.Context, table string) (int64, error) {
	tbl, ok := schema.ForTableName(table)
	if !ok {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	// max() over an empty DateTime column yields the epoch, which maps
	// to 0 here and reads as "no data".
	query := fmt.Sprintf(
		"SELECT toInt64(toUnixTimestamp64Milli(toDateTime64(max(%s), 3))) FROM %s.%s",
		tbl.TimeColumn, a.hotDB, table,
	)
	ts, err := a.hot.QueryInt64(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("max timestamp %s: %w", table, err)
	}
	if ts < 0 {
		ts = 0
	}
	return ts, nil
}

// DestTotalCount counts all cold rows; bootstrap uses it to detect an
// empty cold table.
func (a *Archive) DestTotalCount(ctx context.Context, table string) (uint64, error) {
	query := fmt.Sprintf("SELECT count() FROM %s.%s", a.coldDB, table)
	n, err := a.cold.QueryUInt64(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("count dest total %s: %w", table, err)
	}
	return n, nil
}

// DeleteSourceBefore removes hot rows older than cutoffMs via a
// lightweight delete mutation on the hot instance.
func (a *Archive) DeleteSourceBefore(ctx context.Context, table string, cutoffMs int64) error {
	tbl, ok := schema.ForTableName(table)
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	query := fmt.Sprintf(
		"ALTER TABLE %s.%s DELETE WHERE %s < fromUnixTimestamp64Milli(?)",
		a.hotDB, table, tbl.TimeColumn,
	)
	if err := a.hot.Exec(ctx, query, cutoffMs); err != nil {
		return fmt.Errorf("cleanup delete %s before %d: %w", table, cutoffMs, err)
	}
	return nil
}
