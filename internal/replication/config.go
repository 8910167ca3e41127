// Package replication copies confirmed windows of hot data into the
// cold store, advancing a persisted per-table watermark only after the
// copy is verified.
package replication

import (
	"time"

	"market-data-pipeline/internal/schema"
)

// TableConfig tunes replication for one table.
type TableConfig struct {
	Table string
	// WindowSize bounds how much data one window covers.
	WindowSize time.Duration
	// SafetyLag is the minimum age a record must have before it is
	// eligible, avoiding races with still-arriving writes.
	SafetyLag time.Duration
	// MaxCatchupWindows caps how many consecutive windows one run may
	// replicate to drain backlog.
	MaxCatchupWindows int
	// BootstrapWindow is how much recent hot data the one-time
	// bootstrap seeds into an empty cold table.
	BootstrapWindow time.Duration
	// CleanupEnabled turns on confirm-then-delete of replicated hot rows.
	CleanupEnabled bool
	// CleanupDelay is how far behind the watermark the hot-side delete
	// cutoff trails.
	CleanupDelay time.Duration
}

// high-frequency tables get tighter windows and a larger catch-up
// budget; everything else moves in coarser strides.
var highFrequencyTables = map[string]bool{
	"orderbooks": true,
	"trades":     true,
}

// DefaultTables returns a config for every registry table.
func DefaultTables() []TableConfig {
	var configs []TableConfig
	for _, name := range schema.TableNames() {
		if highFrequencyTables[name] {
			configs = append(configs, TableConfig{
				Table:             name,
				WindowSize:        1 * time.Minute,
				SafetyLag:         2 * time.Minute,
				MaxCatchupWindows: 30,
				BootstrapWindow:   60 * time.Minute,
				CleanupDelay:      24 * time.Hour,
			})
			continue
		}
		configs = append(configs, TableConfig{
			Table:             name,
			WindowSize:        5 * time.Minute,
			SafetyLag:         5 * time.Minute,
			MaxCatchupWindows: 6,
			BootstrapWindow:   360 * time.Minute,
			CleanupDelay:      24 * time.Hour,
		})
	}
	return configs
}

// WithCleanup returns a copy of configs with cleanup enabled and the
// given delay applied to every table.
func WithCleanup(configs []TableConfig, delay time.Duration) []TableConfig {
	out := make([]TableConfig, len(configs))
	for i, tc := range configs {
		tc.CleanupEnabled = true
		if delay > 0 {
			tc.CleanupDelay = delay
		}
		out[i] = tc
	}
	return out
}
