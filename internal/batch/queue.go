package batch

import (
	"sync"

	"market-data-pipeline/internal/domain"
)

// Queue is a FIFO of records for one data type. Enqueue never blocks
// and never drops; growth is bounded only by the MaxQueue force-flush
// in the policy layer. FIFO order is preserved across requeues.
type Queue struct {
	mu      sync.Mutex
	records []*domain.Record
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a record to the tail.
func (q *Queue) Enqueue(rec *domain.Record) {
	q.mu.Lock()
	q.records = append(q.records, rec)
	q.mu.Unlock()
}

// DequeueUpTo removes and returns at most n records from the head.
func (q *Queue) DequeueUpTo(n int) []*domain.Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.records) == 0 {
		return nil
	}
	if n > len(q.records) {
		n = len(q.records)
	}

	batch := make([]*domain.Record, n)
	copy(batch, q.records[:n])
	remaining := len(q.records) - n
	copy(q.records, q.records[n:])
	for i := remaining; i < len(q.records); i++ {
		q.records[i] = nil
	}
	q.records = q.records[:remaining]
	return batch
}

// Requeue pushes a failed batch back to the head in its original order,
// ahead of anything enqueued since it was taken.
func (q *Queue) Requeue(batch []*domain.Record) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	q.records = append(append(make([]*domain.Record, 0, len(batch)+len(q.records)), batch...), q.records...)
	q.mu.Unlock()
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}
