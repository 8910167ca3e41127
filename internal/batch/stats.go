package batch

import (
	"sync/atomic"

	"market-data-pipeline/internal/domain"
)

// TypeStats holds per-data-type counters for one reporting interval.
type TypeStats struct {
	Received atomic.Uint64
	Inserted atomic.Uint64
	Batches  atomic.Uint64
	Errors   atomic.Uint64
	Dropped  atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of one type's counters.
type StatsSnapshot struct {
	Received uint64
	Inserted uint64
	Batches  uint64
	Errors   uint64
	Dropped  uint64
}

// Stats aggregates counters across all data types. Counters are purely
// observational; nothing in the flush path depends on them.
type Stats struct {
	byType map[domain.DataType]*TypeStats
}

// NewStats creates counters for every known data type.
func NewStats() *Stats {
	byType := make(map[domain.DataType]*TypeStats, len(domain.AllDataTypes()))
	for _, t := range domain.AllDataTypes() {
		byType[t] = &TypeStats{}
	}
	return &Stats{byType: byType}
}

// For returns the counters for a data type.
func (s *Stats) For(t domain.DataType) *TypeStats {
	return s.byType[t]
}

// SnapshotAndReset returns the current counters per type and resets
// them for the next reporting interval.
func (s *Stats) SnapshotAndReset() map[domain.DataType]StatsSnapshot {
	out := make(map[domain.DataType]StatsSnapshot, len(s.byType))
	for t, ts := range s.byType {
		out[t] = StatsSnapshot{
			Received: ts.Received.Swap(0),
			Inserted: ts.Inserted.Swap(0),
			Batches:  ts.Batches.Swap(0),
			Errors:   ts.Errors.Swap(0),
			Dropped:  ts.Dropped.Swap(0),
		}
	}
	return out
}
