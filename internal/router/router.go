package router

import (
	"context"
	"encoding/json"
	"log"

	"market-data-pipeline/internal/bus"
	"market-data-pipeline/internal/domain"
	"market-data-pipeline/internal/observability"
)

// Sink receives classified records. Implemented by batch.Coordinator.
type Sink interface {
	Enqueue(t domain.DataType, rec *domain.Record)
}

// Router consumes bus messages and feeds the batch queues. Handlers
// only classify, decode, and enqueue; all I/O happens downstream.
type Router struct {
	sub     bus.Subscriber
	sink    Sink
	metrics *observability.Metrics
	logger  *log.Logger
}

// RouterOptions configures a Router.
type RouterOptions struct {
	Subscriber bus.Subscriber
	Sink       Sink
	Metrics    *observability.Metrics // optional
	Logger     *log.Logger
}

// NewRouter creates a router.
func NewRouter(opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		sub:     opts.Subscriber,
		sink:    opts.Sink,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Run subscribes to all subject families and processes messages until
// ctx is cancelled or the subscription channel closes.
func (r *Router) Run(ctx context.Context) error {
	ch, err := r.sub.Subscribe(ctx, SubjectPatterns()...)
	if err != nil {
		return err
	}
	r.logger.Printf("Subscribed to %d subject families", len(SubjectPatterns()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				r.logger.Println("Bus channel closed")
				return nil
			}
			r.handle(msg)
		}
	}
}

// handle classifies and enqueues one message. Decode failures are
// counted and dropped; they cannot be retried meaningfully.
func (r *Router) handle(msg bus.Message) {
	t, ok := Classify(msg.Subject)
	if !ok {
		return
	}

	rec, err := decodeRecord(t, msg.Data)
	if err != nil {
		if r.metrics != nil {
			r.metrics.DecodeErrors.WithLabelValues(string(t)).Inc()
		}
		r.logger.Printf("Dropping undecodable %s payload on %s: %v", t, msg.Subject, err)
		return
	}

	r.sink.Enqueue(t, rec)
}

// decodeRecord parses a bus payload into a Record. The envelope fields
// (exchange, symbol, timestamp) stay in Fields too so the mapper's
// alias resolution sees the full payload.
func decodeRecord(t domain.DataType, data []byte) (*domain.Record, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	rec := &domain.Record{Type: t, Fields: fields}
	if v, ok := fields["exchange"].(string); ok {
		rec.Exchange = v
	}
	if v, ok := fields["symbol"].(string); ok {
		rec.Symbol = v
	}
	if v, ok := fields["timestamp"].(string); ok {
		rec.Timestamp = v
	}
	return rec, nil
}
