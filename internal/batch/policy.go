// Package batch buffers typed records per data type and flushes them to
// the hot store on size, age, or saturation triggers.
package batch

import (
	"time"

	"market-data-pipeline/internal/domain"
)

// Policy is the per-data-type tuning surface. Immutable at runtime.
type Policy struct {
	// BatchSize is the preferred number of records per bulk insert.
	BatchSize int
	// FlushTimeout forces a flush of a non-empty queue once this much
	// time has passed since the last flush.
	FlushTimeout time.Duration
	// MaxQueue forces an immediate flush when the queue reaches this
	// size, regardless of BatchSize and FlushTimeout. Nothing is dropped.
	MaxQueue int
}

// DefaultPolicies returns the per-type policies. High-frequency streams
// get large batches and short timeouts; low-frequency snapshots get
// BatchSize 1 so a single record never sits waiting for company; event
// streams get small batches with longer timeouts.
func DefaultPolicies() map[domain.DataType]Policy {
	return map[domain.DataType]Policy{
		domain.TypeOrderbook:       {BatchSize: 2000, FlushTimeout: 2 * time.Second, MaxQueue: 10000},
		domain.TypeTrade:           {BatchSize: 1000, FlushTimeout: 2 * time.Second, MaxQueue: 10000},
		domain.TypeFundingRate:     {BatchSize: 1, FlushTimeout: 5 * time.Second, MaxQueue: 500},
		domain.TypeOpenInterest:    {BatchSize: 1, FlushTimeout: 5 * time.Second, MaxQueue: 500},
		domain.TypeLiquidation:     {BatchSize: 50, FlushTimeout: 10 * time.Second, MaxQueue: 2000},
		domain.TypeLSRTopPosition:  {BatchSize: 1, FlushTimeout: 5 * time.Second, MaxQueue: 500},
		domain.TypeLSRAllAccount:   {BatchSize: 1, FlushTimeout: 5 * time.Second, MaxQueue: 500},
		domain.TypeVolatilityIndex: {BatchSize: 1, FlushTimeout: 5 * time.Second, MaxQueue: 500},
	}
}

// ShouldFlush decides whether a queue of the given length is due for a
// flush. The MaxQueue clause is a safety valve: even a misconfigured
// policy cannot let a queue grow unbounded.
func ShouldFlush(queueLen int, p Policy, lastFlush, now time.Time) bool {
	if queueLen == 0 {
		return false
	}
	if queueLen >= p.BatchSize {
		return true
	}
	if queueLen >= p.MaxQueue {
		return true
	}
	return now.Sub(lastFlush) >= p.FlushTimeout
}
