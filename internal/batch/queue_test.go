package batch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-pipeline/internal/domain"
)

func rec(sym string) *domain.Record {
	return &domain.Record{Type: domain.TypeTrade, Symbol: sym}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(rec(fmt.Sprintf("s%d", i)))
	}
	assert.Equal(t, 5, q.Len())

	batch := q.DequeueUpTo(3)
	require.Len(t, batch, 3)
	assert.Equal(t, "s0", batch[0].Symbol)
	assert.Equal(t, "s1", batch[1].Symbol)
	assert.Equal(t, "s2", batch[2].Symbol)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_DequeueMoreThanAvailable(t *testing.T) {
	q := NewQueue()
	q.Enqueue(rec("a"))
	batch := q.DequeueUpTo(10)
	require.Len(t, batch, 1)
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.DequeueUpTo(10))
}

func TestQueue_DequeueZero(t *testing.T) {
	q := NewQueue()
	q.Enqueue(rec("a"))
	assert.Nil(t, q.DequeueUpTo(0))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_RequeuePreservesOrder(t *testing.T) {
	q := NewQueue()
	for _, s := range []string{"a", "b", "c"} {
		q.Enqueue(rec(s))
	}

	batch := q.DequeueUpTo(2) // a, b
	q.Enqueue(rec("d"))       // arrives while the flush is in flight

	// Failed flush: the original batch goes back to the head in its
	// original order, ahead of later arrivals.
	q.Requeue(batch)

	drained := q.DequeueUpTo(10)
	require.Len(t, drained, 4)
	assert.Equal(t, "a", drained[0].Symbol)
	assert.Equal(t, "b", drained[1].Symbol)
	assert.Equal(t, "c", drained[2].Symbol)
	assert.Equal(t, "d", drained[3].Symbol)
}

func TestQueue_RequeueEmpty(t *testing.T) {
	q := NewQueue()
	q.Requeue(nil)
	assert.Equal(t, 0, q.Len())
}
