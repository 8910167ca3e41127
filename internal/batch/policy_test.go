package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"market-data-pipeline/internal/domain"
)

func TestShouldFlush_EmptyQueueNeverFlushes(t *testing.T) {
	p := Policy{BatchSize: 1, FlushTimeout: 0, MaxQueue: 1}
	now := time.Now()
	assert.False(t, ShouldFlush(0, p, now.Add(-time.Hour), now))
}

func TestShouldFlush_BatchSizeReached(t *testing.T) {
	p := Policy{BatchSize: 500, FlushTimeout: 1500 * time.Millisecond, MaxQueue: 10000}
	now := time.Now()
	assert.False(t, ShouldFlush(499, p, now, now))
	assert.True(t, ShouldFlush(500, p, now, now))
	assert.True(t, ShouldFlush(501, p, now, now))
}

func TestShouldFlush_TimeoutElapsed(t *testing.T) {
	p := Policy{BatchSize: 500, FlushTimeout: 1500 * time.Millisecond, MaxQueue: 10000}
	now := time.Now()
	assert.False(t, ShouldFlush(1, p, now.Add(-time.Second), now))
	assert.True(t, ShouldFlush(1, p, now.Add(-2*time.Second), now))
}

func TestShouldFlush_MaxQueueSafetyValve(t *testing.T) {
	// Force-flush fires at MaxQueue regardless of the other knobs,
	// even for a policy misconfigured with an unreachable batch size.
	p := Policy{BatchSize: 1 << 30, FlushTimeout: time.Hour, MaxQueue: 100}
	now := time.Now()
	assert.False(t, ShouldFlush(99, p, now, now))
	assert.True(t, ShouldFlush(100, p, now, now))
	assert.True(t, ShouldFlush(5000, p, now, now))
}

func TestShouldFlush_BatchSizeOne(t *testing.T) {
	// Low-frequency types flush a single record immediately.
	p := Policy{BatchSize: 1, FlushTimeout: 5 * time.Second, MaxQueue: 500}
	now := time.Now()
	assert.True(t, ShouldFlush(1, p, now, now))
}

func TestDefaultPolicies_CoverAllTypes(t *testing.T) {
	policies := DefaultPolicies()
	for _, dt := range domain.AllDataTypes() {
		p, ok := policies[dt]
		assert.True(t, ok, "missing policy for %s", dt)
		assert.Greater(t, p.BatchSize, 0)
		assert.Greater(t, p.MaxQueue, 0)
		assert.Greater(t, p.FlushTimeout, time.Duration(0))
	}
}
