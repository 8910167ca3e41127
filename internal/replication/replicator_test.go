package replication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-pipeline/internal/storage"
	"market-data-pipeline/internal/storage/memory"
)

type window struct {
	table string
	start int64
	end   int64
}

type cutoffCall struct {
	table  string
	cutoff int64
}

// fakeArchiver records every call and answers counts through hooks.
type fakeArchiver struct {
	mu      sync.Mutex
	copies  []window
	deletes []cutoffCall

	copyErr     error
	sourceCount func(table string, startMs, endMs int64) uint64
	destCount   func(table string, startMs, endMs int64) uint64
	sourceMaxTs map[string]int64
	destTotal   map[string]uint64
}

var _ storage.Archiver = (*fakeArchiver)(nil)

func (a *fakeArchiver) CopyWindow(_ context.Context, table string, startMs, endMs int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.copyErr != nil {
		return a.copyErr
	}
	a.copies = append(a.copies, window{table, startMs, endMs})
	return nil
}

func (a *fakeArchiver) SourceCount(_ context.Context, table string, startMs, endMs int64) (uint64, error) {
	if a.sourceCount == nil {
		return 0, nil
	}
	return a.sourceCount(table, startMs, endMs), nil
}

func (a *fakeArchiver) DestCount(_ context.Context, table string, startMs, endMs int64) (uint64, error) {
	if a.destCount == nil {
		return 0, nil
	}
	return a.destCount(table, startMs, endMs), nil
}

func (a *fakeArchiver) SourceMaxTimestamp(_ context.Context, table string) (int64, error) {
	return a.sourceMaxTs[table], nil
}

func (a *fakeArchiver) DestTotalCount(_ context.Context, table string) (uint64, error) {
	return a.destTotal[table], nil
}

func (a *fakeArchiver) DeleteSourceBefore(_ context.Context, table string, cutoffMs int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deletes = append(a.deletes, cutoffCall{table, cutoffMs})
	return nil
}

func (a *fakeArchiver) copyCalls() []window {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]window(nil), a.copies...)
}

func (a *fakeArchiver) deleteCalls() []cutoffCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]cutoffCall(nil), a.deletes...)
}

var testNow = time.Date(2025, 8, 6, 12, 0, 0, 0, time.UTC)

func tradesConfig() TableConfig {
	return TableConfig{
		Table:             "trades",
		WindowSize:        1 * time.Minute,
		SafetyLag:         2 * time.Minute,
		MaxCatchupWindows: 30,
		BootstrapWindow:   60 * time.Minute,
		CleanupDelay:      24 * time.Hour,
	}
}

func newTestReplicator(t *testing.T, arch *fakeArchiver, state *memory.StateStore, tc TableConfig) *Replicator {
	t.Helper()
	r, err := NewReplicator(ReplicatorOptions{
		Archiver: arch,
		State:    state,
		Tables:   []TableConfig{tc},
		Now:      func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return r
}

// markBootstrapped keeps bootstrap seeding out of watermark tests.
func markBootstrapped(t *testing.T, state *memory.StateStore) {
	t.Helper()
	require.NoError(t, state.SetBootstrapDone(context.Background()))
}

func TestReplicator_VerifiedWindowAdvancesWatermark(t *testing.T) {
	equal := func(string, int64, int64) uint64 { return 100 }
	arch := &fakeArchiver{sourceCount: equal, destCount: equal}
	state := memory.NewStateStore()
	markBootstrapped(t, state)

	tc := tradesConfig()
	cutoff := testNow.Add(-tc.SafetyLag).UnixMilli()
	start := testNow.Add(-10 * time.Minute).UnixMilli()
	require.NoError(t, state.SetWatermark(context.Background(), "trades", start))

	r := newTestReplicator(t, arch, state, tc)
	r.RunOnce(context.Background())

	// 8 minutes of backlog behind the safety cutoff, 1-minute windows.
	copies := arch.copyCalls()
	require.Len(t, copies, 8)
	assert.Equal(t, start, copies[0].start)
	assert.Equal(t, start+tc.WindowSize.Milliseconds(), copies[0].end)
	assert.Equal(t, cutoff, copies[len(copies)-1].end)

	wm, err := state.GetWatermark(context.Background(), "trades")
	require.NoError(t, err)
	assert.Equal(t, cutoff, wm)

	// Caught up: the next round with the same clock copies nothing.
	r.RunOnce(context.Background())
	assert.Len(t, arch.copyCalls(), 8)
}

func TestReplicator_ShortfallHoldsWatermark(t *testing.T) {
	arch := &fakeArchiver{
		sourceCount: func(string, int64, int64) uint64 { return 100 },
		destCount:   func(string, int64, int64) uint64 { return 80 },
	}
	state := memory.NewStateStore()
	markBootstrapped(t, state)

	tc := tradesConfig()
	start := testNow.Add(-10 * time.Minute).UnixMilli()
	require.NoError(t, state.SetWatermark(context.Background(), "trades", start))

	r := newTestReplicator(t, arch, state, tc)
	r.RunOnce(context.Background())

	// One attempt, no advance.
	require.Len(t, arch.copyCalls(), 1)
	wm, err := state.GetWatermark(context.Background(), "trades")
	require.NoError(t, err)
	assert.Equal(t, start, wm)

	// The next round retries the exact same window start.
	r.RunOnce(context.Background())
	copies := arch.copyCalls()
	require.Len(t, copies, 2)
	assert.Equal(t, copies[0].start, copies[1].start)
	assert.Equal(t, copies[0].end, copies[1].end)
}

func TestReplicator_CopyErrorHoldsWatermark(t *testing.T) {
	arch := &fakeArchiver{copyErr: errors.New("cold store down")}
	state := memory.NewStateStore()
	markBootstrapped(t, state)

	start := testNow.Add(-10 * time.Minute).UnixMilli()
	require.NoError(t, state.SetWatermark(context.Background(), "trades", start))

	r := newTestReplicator(t, arch, state, tradesConfig())
	r.RunOnce(context.Background())

	wm, err := state.GetWatermark(context.Background(), "trades")
	require.NoError(t, err)
	assert.Equal(t, start, wm)
}

func TestReplicator_CatchupBudgetCapsOneRound(t *testing.T) {
	equal := func(string, int64, int64) uint64 { return 10 }
	arch := &fakeArchiver{sourceCount: equal, destCount: equal}
	state := memory.NewStateStore()
	markBootstrapped(t, state)

	tc := tradesConfig()
	tc.MaxCatchupWindows = 3
	start := testNow.Add(-2 * time.Hour).UnixMilli()
	require.NoError(t, state.SetWatermark(context.Background(), "trades", start))

	r := newTestReplicator(t, arch, state, tc)
	r.RunOnce(context.Background())

	assert.Len(t, arch.copyCalls(), 3)
	wm, err := state.GetWatermark(context.Background(), "trades")
	require.NoError(t, err)
	assert.Equal(t, start+3*tc.WindowSize.Milliseconds(), wm)
}

func TestReplicator_PartialWindowClampedToCutoff(t *testing.T) {
	equal := func(string, int64, int64) uint64 { return 5 }
	arch := &fakeArchiver{sourceCount: equal, destCount: equal}
	state := memory.NewStateStore()
	markBootstrapped(t, state)

	tc := tradesConfig()
	cutoff := testNow.Add(-tc.SafetyLag).UnixMilli()
	start := cutoff - 30*time.Second.Milliseconds() // less than one full window
	require.NoError(t, state.SetWatermark(context.Background(), "trades", start))

	r := newTestReplicator(t, arch, state, tc)
	r.RunOnce(context.Background())

	copies := arch.copyCalls()
	require.Len(t, copies, 1)
	assert.Equal(t, cutoff, copies[0].end)
}

func TestReplicator_MissingWatermarkStartsAtCutoff(t *testing.T) {
	arch := &fakeArchiver{}
	state := memory.NewStateStore()
	markBootstrapped(t, state)

	tc := tradesConfig()
	r := newTestReplicator(t, arch, state, tc)
	r.RunOnce(context.Background())

	// Initialized at now-SafetyLag and persisted; nothing eligible yet.
	assert.Empty(t, arch.copyCalls())
	wm, err := state.GetWatermark(context.Background(), "trades")
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-tc.SafetyLag).UnixMilli(), wm)
}

func TestReplicator_BootstrapSeedsEmptyColdTable(t *testing.T) {
	arch := &fakeArchiver{
		sourceMaxTs: map[string]int64{"trades": testNow.Add(-time.Minute).UnixMilli()},
		destTotal:   map[string]uint64{"trades": 0},
	}
	state := memory.NewStateStore()

	tc := tradesConfig()
	r := newTestReplicator(t, arch, state, tc)
	r.RunOnce(context.Background())

	copies := arch.copyCalls()
	require.NotEmpty(t, copies)
	seed := copies[0]
	assert.Equal(t, testNow.Add(-tc.BootstrapWindow).UnixMilli(), seed.start)
	assert.Equal(t, testNow.UnixMilli(), seed.end)

	done, err := state.BootstrapDone(context.Background())
	require.NoError(t, err)
	assert.True(t, done)

	// One-time only.
	before := len(arch.copyCalls())
	r.RunOnce(context.Background())
	assert.Equal(t, before, len(arch.copyCalls()))
}

func TestReplicator_BootstrapSkipsPopulatedColdTable(t *testing.T) {
	arch := &fakeArchiver{
		sourceMaxTs: map[string]int64{"trades": testNow.UnixMilli()},
		destTotal:   map[string]uint64{"trades": 42},
	}
	state := memory.NewStateStore()

	r := newTestReplicator(t, arch, state, tradesConfig())
	r.RunOnce(context.Background())

	assert.Empty(t, arch.copyCalls())
	done, err := state.BootstrapDone(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
}

func TestReplicator_BootstrapSkipsStaleHotData(t *testing.T) {
	tc := tradesConfig()
	arch := &fakeArchiver{
		// Newest hot row predates the bootstrap window entirely.
		sourceMaxTs: map[string]int64{"trades": testNow.Add(-2 * tc.BootstrapWindow).UnixMilli()},
	}
	state := memory.NewStateStore()

	r := newTestReplicator(t, arch, state, tc)
	r.RunOnce(context.Background())

	assert.Empty(t, arch.copyCalls())
}

func TestReplicator_CleanupDeletesAfterFreshVerification(t *testing.T) {
	equal := func(string, int64, int64) uint64 { return 10 }
	arch := &fakeArchiver{sourceCount: equal, destCount: equal}
	state := memory.NewStateStore()
	markBootstrapped(t, state)

	tc := tradesConfig()
	tc.CleanupEnabled = true
	tc.CleanupDelay = time.Hour
	wm := testNow.Add(-tc.SafetyLag).UnixMilli()
	require.NoError(t, state.SetWatermark(context.Background(), "trades", wm))

	r := newTestReplicator(t, arch, state, tc)
	r.RunOnce(context.Background())

	deletes := arch.deleteCalls()
	require.Len(t, deletes, 1)
	assert.Equal(t, "trades", deletes[0].table)
	assert.Equal(t, wm-tc.CleanupDelay.Milliseconds(), deletes[0].cutoff)
}

func TestReplicator_CleanupRefusesUnverifiedDelete(t *testing.T) {
	arch := &fakeArchiver{
		sourceCount: func(string, int64, int64) uint64 { return 10 },
		destCount:   func(string, int64, int64) uint64 { return 9 },
	}
	state := memory.NewStateStore()
	markBootstrapped(t, state)

	tc := tradesConfig()
	tc.CleanupEnabled = true
	tc.CleanupDelay = time.Hour
	wm := testNow.Add(-tc.SafetyLag).UnixMilli()
	require.NoError(t, state.SetWatermark(context.Background(), "trades", wm))

	r := newTestReplicator(t, arch, state, tc)
	r.RunOnce(context.Background())

	assert.Empty(t, arch.deleteCalls())
}

func TestReplicator_CleanupNoopWhenHotEmpty(t *testing.T) {
	arch := &fakeArchiver{} // counts default to zero
	state := memory.NewStateStore()
	markBootstrapped(t, state)

	tc := tradesConfig()
	tc.CleanupEnabled = true
	tc.CleanupDelay = time.Hour
	wm := testNow.Add(-tc.SafetyLag).UnixMilli()
	require.NoError(t, state.SetWatermark(context.Background(), "trades", wm))

	r := newTestReplicator(t, arch, state, tc)
	r.RunOnce(context.Background())

	assert.Empty(t, arch.deleteCalls())
}

func TestDefaultTables_CoverEveryRegistryTable(t *testing.T) {
	configs := DefaultTables()
	assert.Len(t, configs, 8)
	for _, tc := range configs {
		assert.Greater(t, tc.WindowSize, time.Duration(0), tc.Table)
		assert.Greater(t, tc.SafetyLag, time.Duration(0), tc.Table)
		assert.Greater(t, tc.MaxCatchupWindows, 0, tc.Table)
		assert.False(t, tc.CleanupEnabled, tc.Table)
	}
}

func TestWithCleanup(t *testing.T) {
	configs := WithCleanup(DefaultTables(), 2*time.Hour)
	for _, tc := range configs {
		assert.True(t, tc.CleanupEnabled, tc.Table)
		assert.Equal(t, 2*time.Hour, tc.CleanupDelay, tc.Table)
	}
}
