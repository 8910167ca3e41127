package replication

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"market-data-pipeline/internal/observability"
	"market-data-pipeline/internal/storage"
)

// Replicator drives the per-table copy/verify/advance cycle. It is the
// sole owner of the replication state store; the writer process never
// touches it. Replication of a given table is strictly sequential, so
// the watermark read-modify-write never races.
type Replicator struct {
	archiver storage.Archiver
	state    storage.ReplicationStateStore
	tables   []TableConfig
	interval time.Duration
	metrics  *observability.Metrics
	logger   *log.Logger
	now      func() time.Time
}

// ReplicatorOptions configures a Replicator.
type ReplicatorOptions struct {
	Archiver storage.Archiver
	State    storage.ReplicationStateStore
	Tables   []TableConfig // defaults to DefaultTables()
	Interval time.Duration // default 60s
	Metrics  *observability.Metrics
	Logger   *log.Logger
	Now      func() time.Time // test hook
}

// NewReplicator creates a replicator.
func NewReplicator(opts ReplicatorOptions) (*Replicator, error) {
	if opts.Archiver == nil || opts.State == nil {
		return nil, fmt.Errorf("replicator requires an archiver and a state store")
	}

	tables := opts.Tables
	if tables == nil {
		tables = DefaultTables()
	}
	interval := opts.Interval
	if interval == 0 {
		interval = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Replicator{
		archiver: opts.Archiver,
		state:    opts.State,
		tables:   tables,
		interval: interval,
		metrics:  opts.Metrics,
		logger:   logger,
		now:      now,
	}, nil
}

// Run executes scheduled rounds until ctx is cancelled. A failed window
// is never fatal: it is counted and retried on the next round. On
// cancellation the loop exits after the current table finishes.
func (r *Replicator) Run(ctx context.Context) error {
	r.logger.Printf("Replicator started, %d tables, interval %v", len(r.tables), r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Replicator stopping...")
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs one round over all tables: bootstrap seeding on the
// first-ever run, then windowed replication and optional cleanup.
func (r *Replicator) RunOnce(ctx context.Context) {
	if err := r.bootstrap(ctx); err != nil {
		r.logger.Printf("Bootstrap failed (will retry next round): %v", err)
	}

	for _, tc := range r.tables {
		if ctx.Err() != nil {
			return
		}
		r.replicateTable(ctx, tc)
	}
}

// replicateTable advances one table's watermark by up to
// MaxCatchupWindows verified windows, then reports lag and runs cleanup.
func (r *Replicator) replicateTable(ctx context.Context, tc TableConfig) {
	wm, err := r.watermark(ctx, tc)
	if err != nil {
		r.logger.Printf("Watermark unavailable for %s: %v", tc.Table, err)
		return
	}

	for i := 0; i < tc.MaxCatchupWindows; i++ {
		cutoff := r.now().Add(-tc.SafetyLag).UnixMilli()
		if wm >= cutoff {
			break // nothing old enough yet
		}

		end := wm + tc.WindowSize.Milliseconds()
		if end > cutoff {
			end = cutoff
		}

		advanced, err := r.replicateWindow(ctx, tc.Table, wm, end)
		if err != nil {
			r.failWindow(tc.Table, wm, end, err)
			break
		}
		if !advanced {
			break
		}
		wm = end
	}

	r.reportLag(ctx, tc.Table, wm)

	if tc.CleanupEnabled {
		r.cleanupTable(ctx, tc, wm)
	}
}

// replicateWindow runs COPY then VERIFY for [startMs, endMs) and
// advances the watermark iff the destination covers the source. A
// verification shortfall is a decision, not an error: the watermark
// stays put and the same window start is recomputed next round.
func (r *Replicator) replicateWindow(ctx context.Context, table string, startMs, endMs int64) (bool, error) {
	if err := r.archiver.CopyWindow(ctx, table, startMs, endMs); err != nil {
		return false, err
	}

	srcCount, err := r.archiver.SourceCount(ctx, table, startMs, endMs)
	if err != nil {
		return false, err
	}
	destCount, err := r.archiver.DestCount(ctx, table, startMs, endMs)
	if err != nil {
		return false, err
	}

	if destCount < srcCount {
		r.failWindow(table, startMs, endMs,
			fmt.Errorf("verification shortfall: dest %d < source %d", destCount, srcCount))
		return false, nil
	}

	if err := r.state.SetWatermark(ctx, table, endMs); err != nil {
		return false, fmt.Errorf("persist watermark: %w", err)
	}

	if r.metrics != nil {
		r.metrics.WindowsReplicated.WithLabelValues(table).Inc()
		r.metrics.RowsReplicated.WithLabelValues(table).Add(float64(srcCount))
		r.metrics.LastSuccessfulReplica.SetToCurrentTime()
	}
	return true, nil
}

// watermark loads the table watermark, initializing a missing one to
// the current safety cutoff so a fresh table starts at "now" rather
// than replaying history (bootstrap covers the recent past).
func (r *Replicator) watermark(ctx context.Context, tc TableConfig) (int64, error) {
	wm, err := r.state.GetWatermark(ctx, tc.Table)
	if err == nil {
		return wm, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}

	wm = r.now().Add(-tc.SafetyLag).UnixMilli()
	if err := r.state.SetWatermark(ctx, tc.Table, wm); err != nil {
		return 0, fmt.Errorf("initialize watermark: %w", err)
	}
	r.logger.Printf("Initialized watermark for %s at %d", tc.Table, wm)
	return wm, nil
}

// bootstrap seeds each empty cold table with the most recent hot data,
// bypassing the watermark logic, exactly once per deployment.
func (r *Replicator) bootstrap(ctx context.Context) error {
	done, err := r.state.BootstrapDone(ctx)
	if err != nil {
		return fmt.Errorf("read bootstrap flag: %w", err)
	}
	if done {
		return nil
	}

	for _, tc := range r.tables {
		if err := r.bootstrapTable(ctx, tc); err != nil {
			return fmt.Errorf("bootstrap %s: %w", tc.Table, err)
		}
	}

	if err := r.state.SetBootstrapDone(ctx); err != nil {
		return fmt.Errorf("persist bootstrap flag: %w", err)
	}
	r.logger.Println("Bootstrap seeding complete")
	return nil
}

// bootstrapTable copies the last BootstrapWindow of hot data into the
// cold table when the cold side is empty and the hot side has recent
// rows. Overlap with later watermark windows only duplicates rows,
// never loses them.
func (r *Replicator) bootstrapTable(ctx context.Context, tc TableConfig) error {
	destTotal, err := r.archiver.DestTotalCount(ctx, tc.Table)
	if err != nil {
		return err
	}
	if destTotal > 0 {
		return nil
	}

	maxTs, err := r.archiver.SourceMaxTimestamp(ctx, tc.Table)
	if err != nil {
		return err
	}

	nowMs := r.now().UnixMilli()
	startMs := nowMs - tc.BootstrapWindow.Milliseconds()
	if maxTs == 0 || maxTs < startMs {
		return nil // no recent hot data to seed
	}

	if err := r.archiver.CopyWindow(ctx, tc.Table, startMs, nowMs); err != nil {
		return err
	}
	r.logger.Printf("Bootstrapped %s with last %v of hot data", tc.Table, tc.BootstrapWindow)
	return nil
}

// cleanupTable deletes hot rows older than watermark-CleanupDelay, but
// only after a fresh re-verification that the cold side covers them.
// A stale verification from an earlier round is never trusted.
func (r *Replicator) cleanupTable(ctx context.Context, tc TableConfig, wm int64) {
	cutoff := wm - tc.CleanupDelay.Milliseconds()
	if cutoff <= 0 {
		return
	}

	hotCount, err := r.archiver.SourceCount(ctx, tc.Table, 0, cutoff)
	if err != nil {
		r.logger.Printf("Cleanup verification failed for %s: %v", tc.Table, err)
		return
	}
	if hotCount == 0 {
		return
	}

	destCount, err := r.archiver.DestCount(ctx, tc.Table, 0, cutoff)
	if err != nil {
		r.logger.Printf("Cleanup verification failed for %s: %v", tc.Table, err)
		return
	}
	if destCount < hotCount {
		r.logger.Printf("Skipping cleanup for %s: dest %d < hot %d before cutoff %d",
			tc.Table, destCount, hotCount, cutoff)
		return
	}

	if err := r.archiver.DeleteSourceBefore(ctx, tc.Table, cutoff); err != nil {
		r.logger.Printf("Cleanup delete failed for %s: %v", tc.Table, err)
		return
	}

	if r.metrics != nil {
		r.metrics.CleanupDeletes.WithLabelValues(tc.Table).Inc()
	}
	r.logger.Printf("Cleaned up %d hot rows from %s before %d", hotCount, tc.Table, cutoff)
}

// failWindow records a failed window.
func (r *Replicator) failWindow(table string, startMs, endMs int64, err error) {
	if r.metrics != nil {
		r.metrics.FailedWindows.WithLabelValues(table).Inc()
	}
	r.logger.Printf("Window [%d,%d) failed for %s (will retry next round): %v", startMs, endMs, table, err)
}

// reportLag exports hot_max_ts - watermark for monitoring. A stalled
// table shows as growing lag, not a crash.
func (r *Replicator) reportLag(ctx context.Context, table string, wm int64) {
	if r.metrics == nil {
		return
	}
	maxTs, err := r.archiver.SourceMaxTimestamp(ctx, table)
	if err != nil || maxTs == 0 {
		return
	}
	lag := maxTs - wm
	if lag < 0 {
		lag = 0
	}
	r.metrics.ReplicationLag.WithLabelValues(table).Set(float64(lag))
}
