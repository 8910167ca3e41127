package batch

import (
	"context"
	"log"
	"sync"
	"time"

	"market-data-pipeline/internal/domain"
)

// Manager runs the timer-driven maintenance loops: one flush-check loop
// per data type plus a periodic stats reporter. Loops share no state
// beyond the coordinator's own per-type queues and locks, so they may
// run concurrently.
type Manager struct {
	coord         *Coordinator
	statsInterval time.Duration
	drainTimeout  time.Duration
	logger        *log.Logger
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Coordinator   *Coordinator
	StatsInterval time.Duration // default 60s
	DrainTimeout  time.Duration // default 10s
	Logger        *log.Logger
}

// NewManager creates a manager for the given coordinator.
func NewManager(opts ManagerOptions) *Manager {
	statsInterval := opts.StatsInterval
	if statsInterval == 0 {
		statsInterval = 60 * time.Second
	}
	drainTimeout := opts.DrainTimeout
	if drainTimeout == 0 {
		drainTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		coord:         opts.Coordinator,
		statsInterval: statsInterval,
		drainTimeout:  drainTimeout,
		logger:        logger,
	}
}

// checkInterval derives the flush-check cadence from a policy: half the
// flush timeout, clamped to [50ms, 1s], so a timeout is detected at
// most one check late.
func checkInterval(p Policy) time.Duration {
	interval := p.FlushTimeout / 2
	if interval > time.Second {
		interval = time.Second
	}
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	return interval
}

// Run starts all maintenance loops and blocks until ctx is cancelled.
// On shutdown, in-flight flushes complete and every non-empty queue is
// drained via a final forced flush.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, t := range domain.AllDataTypes() {
		wg.Add(1)
		go func(t domain.DataType) {
			defer wg.Done()
			m.flushLoop(ctx, t)
		}(t)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.statsLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()

	// Final drain with a fresh context: the run context is already
	// cancelled, but queued records still need to reach the store.
	drainCtx, cancel := context.WithTimeout(context.Background(), m.drainTimeout)
	defer cancel()
	if err := m.coord.Drain(drainCtx); err != nil {
		m.logger.Printf("Final drain incomplete: %v", err)
	} else {
		m.logger.Println("Final drain complete")
	}

	return ctx.Err()
}

// flushLoop periodically evaluates the flush policy for one data type.
// A failed flush is not retried here: the requeued batch is picked up
// by the next tick.
func (m *Manager) flushLoop(ctx context.Context, t domain.DataType) {
	st := m.coord.states[t]
	ticker := time.NewTicker(checkInterval(st.policy))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.coord.CheckAndFlush(ctx, t); err != nil {
				m.logger.Printf("Flush failed for %s (will retry on next check): %v", t, err)
			}
		}
	}
}

// statsLoop periodically logs and resets the interval counters.
func (m *Manager) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(m.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.report()
		}
	}
}

func (m *Manager) report() {
	snapshots := m.coord.Stats().SnapshotAndReset()
	for _, t := range domain.AllDataTypes() {
		s := snapshots[t]
		depth := m.coord.QueueLen(t)
		if s.Received == 0 && s.Inserted == 0 && s.Errors == 0 && depth == 0 {
			continue
		}
		m.logger.Printf("stats %s: received=%d inserted=%d batches=%d errors=%d dropped=%d queue=%d",
			t, s.Received, s.Inserted, s.Batches, s.Errors, s.Dropped, depth)
	}
}
