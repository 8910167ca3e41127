package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"market-data-pipeline/internal/domain"
	"market-data-pipeline/internal/observability"
	"market-data-pipeline/internal/schema"
	"market-data-pipeline/internal/storage"
)

// typeState is the per-data-type flush state. flushMu serializes flush
// attempts so at most one flush per type is in flight; TryLock lets a
// scheduled check skip instead of piling up behind a slow insert.
type typeState struct {
	queue     *Queue
	policy    Policy
	table     schema.Table
	flushMu   sync.Mutex
	lastFlush atomic.Int64 // unix nanos of the last successful flush
}

// Coordinator owns the dequeue/clean/insert/requeue cycle for every
// data type. The router owns enqueue; the coordinator owns everything
// after it.
type Coordinator struct {
	writer  storage.HotWriter
	states  map[domain.DataType]*typeState
	stats   *Stats
	metrics *observability.Metrics
}

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	Writer   storage.HotWriter
	Policies map[domain.DataType]Policy // defaults to DefaultPolicies()
	Stats    *Stats                     // defaults to fresh counters
	Metrics  *observability.Metrics     // optional
}

// NewCoordinator creates a coordinator with one queue per data type.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	if opts.Writer == nil {
		return nil, fmt.Errorf("coordinator requires a hot writer")
	}

	policies := opts.Policies
	if policies == nil {
		policies = DefaultPolicies()
	}

	stats := opts.Stats
	if stats == nil {
		stats = NewStats()
	}

	states := make(map[domain.DataType]*typeState, len(domain.AllDataTypes()))
	now := time.Now().UnixNano()
	for _, t := range domain.AllDataTypes() {
		policy, ok := policies[t]
		if !ok {
			return nil, fmt.Errorf("no batch policy for data type %q", t)
		}
		tbl, ok := schema.ForType(t)
		if !ok {
			return nil, fmt.Errorf("no table schema for data type %q", t)
		}
		st := &typeState{queue: NewQueue(), policy: policy, table: tbl}
		st.lastFlush.Store(now)
		states[t] = st
	}

	return &Coordinator{
		writer:  opts.Writer,
		states:  states,
		stats:   stats,
		metrics: opts.Metrics,
	}, nil
}

// Stats returns the coordinator's counters.
func (c *Coordinator) Stats() *Stats {
	return c.stats
}

// Enqueue adds a record to its type's queue. Never blocks, never drops.
func (c *Coordinator) Enqueue(t domain.DataType, rec *domain.Record) {
	st, ok := c.states[t]
	if !ok {
		return
	}
	st.queue.Enqueue(rec)
	c.stats.For(t).Received.Add(1)
	if c.metrics != nil {
		c.metrics.RecordsReceived.WithLabelValues(string(t)).Inc()
		c.metrics.QueueDepth.WithLabelValues(string(t)).Set(float64(st.queue.Len()))
	}
}

// QueueLen returns the current depth of one type's queue.
func (c *Coordinator) QueueLen(t domain.DataType) int {
	if st, ok := c.states[t]; ok {
		return st.queue.Len()
	}
	return 0
}

// CheckAndFlush evaluates the flush policy for one type and performs a
// flush if due. If another flush for the same type is already in
// flight, the check is skipped; the next scheduled check retries.
func (c *Coordinator) CheckAndFlush(ctx context.Context, t domain.DataType) error {
	st, ok := c.states[t]
	if !ok {
		return nil
	}

	last := time.Unix(0, st.lastFlush.Load())
	if !ShouldFlush(st.queue.Len(), st.policy, last, time.Now()) {
		return nil
	}

	if !st.flushMu.TryLock() {
		return nil
	}
	defer st.flushMu.Unlock()

	return c.flushLocked(ctx, t, st)
}

// Flush forces one flush cycle for a type regardless of policy, waiting
// for any in-flight flush to finish first. Used by the shutdown drain.
func (c *Coordinator) Flush(ctx context.Context, t domain.DataType) error {
	st, ok := c.states[t]
	if !ok {
		return nil
	}
	st.flushMu.Lock()
	defer st.flushMu.Unlock()
	return c.flushLocked(ctx, t, st)
}

// flushLocked runs one dequeue/clean/insert cycle. Caller holds flushMu.
// On insert failure the original uncleaned batch goes back to the queue
// head in original order; the scheduler is the only retry mechanism.
func (c *Coordinator) flushLocked(ctx context.Context, t domain.DataType, st *typeState) error {
	batch := st.queue.DequeueUpTo(st.policy.BatchSize)
	if len(batch) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(batch))
	dropped := 0
	for _, rec := range batch {
		row := schema.MapRecord(rec, st.table)
		if row == nil {
			dropped++
			continue
		}
		rows = append(rows, row)
	}

	ts := c.stats.For(t)

	if len(rows) == 0 {
		// Nothing mappable; the unmappable records are gone for good.
		c.countDropped(t, ts, dropped)
		st.lastFlush.Store(time.Now().UnixNano())
		return nil
	}

	start := time.Now()
	if err := c.writer.InsertRows(ctx, st.table.Name, rows); err != nil {
		// The whole original batch goes back, unmappable records
		// included; drops are counted only when a batch leaves the
		// pipeline so a retried record is never counted twice.
		st.queue.Requeue(batch)
		ts.Errors.Add(1)
		if c.metrics != nil {
			c.metrics.FlushErrors.WithLabelValues(string(t)).Inc()
			c.metrics.QueueDepth.WithLabelValues(string(t)).Set(float64(st.queue.Len()))
		}
		return fmt.Errorf("flush %s: %w", t, err)
	}

	c.countDropped(t, ts, dropped)
	st.lastFlush.Store(time.Now().UnixNano())
	ts.Inserted.Add(uint64(len(rows)))
	ts.Batches.Add(1)
	if c.metrics != nil {
		c.metrics.RecordsInserted.WithLabelValues(string(t)).Add(float64(len(rows)))
		c.metrics.BatchesFlushed.WithLabelValues(string(t)).Inc()
		c.metrics.FlushDuration.WithLabelValues(string(t)).Observe(time.Since(start).Seconds())
		c.metrics.QueueDepth.WithLabelValues(string(t)).Set(float64(st.queue.Len()))
		c.metrics.LastSuccessfulFlush.SetToCurrentTime()
	}
	return nil
}

func (c *Coordinator) countDropped(t domain.DataType, ts *TypeStats, n int) {
	if n == 0 {
		return
	}
	ts.Dropped.Add(uint64(n))
	if c.metrics != nil {
		c.metrics.RecordsDropped.WithLabelValues(string(t)).Add(float64(n))
	}
}

// Drain force-flushes every queue until empty or the first error per
// type. Called once on shutdown.
func (c *Coordinator) Drain(ctx context.Context) error {
	var firstErr error
	for _, t := range domain.AllDataTypes() {
		for c.QueueLen(t) > 0 {
			if err := c.Flush(ctx, t); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				break
			}
		}
	}
	return firstErr
}
