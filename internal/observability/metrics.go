// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Ingestion metrics
	RecordsReceived *prometheus.CounterVec
	RecordsInserted *prometheus.CounterVec
	RecordsDropped  *prometheus.CounterVec
	DecodeErrors    *prometheus.CounterVec
	BatchesFlushed  *prometheus.CounterVec
	FlushErrors     *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	FlushDuration   *prometheus.HistogramVec

	// Replication metrics
	WindowsReplicated *prometheus.CounterVec
	FailedWindows     *prometheus.CounterVec
	RowsReplicated    *prometheus.CounterVec
	ReplicationLag    *prometheus.GaugeVec
	CleanupDeletes    *prometheus.CounterVec

	// Health metrics
	LastSuccessfulFlush   prometheus.Gauge
	LastSuccessfulReplica prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "market_data_pipeline"
	}

	return &Metrics{
		RecordsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_received_total",
			Help:      "Total number of records received from the bus",
		}, []string{"data_type"}),
		RecordsInserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_inserted_total",
			Help:      "Total number of records written to the hot store",
		}, []string{"data_type"}),
		RecordsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "records_dropped_total",
			Help:      "Total number of records dropped during column mapping",
		}, []string{"data_type"}),
		DecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_errors_total",
			Help:      "Total number of bus payloads that failed to decode",
		}, []string{"data_type"}),
		BatchesFlushed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "batches_flushed_total",
			Help:      "Total number of batches written to the hot store",
		}, []string{"data_type"}),
		FlushErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "flush_errors_total",
			Help:      "Total number of failed bulk inserts",
		}, []string{"data_type"}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Current number of records buffered per data type",
		}, []string{"data_type"}),
		FlushDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "flush_duration_seconds",
			Help:      "Bulk insert duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"data_type"}),

		WindowsReplicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "windows_replicated_total",
			Help:      "Total number of verified hot-to-cold windows",
		}, []string{"table"}),
		FailedWindows: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "failed_windows_total",
			Help:      "Total number of windows that failed copy or verification",
		}, []string{"table"}),
		RowsReplicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "rows_replicated_total",
			Help:      "Total number of rows confirmed in the cold store",
		}, []string{"table"}),
		ReplicationLag: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "lag_milliseconds",
			Help:      "Hot max timestamp minus watermark per table",
		}, []string{"table"}),
		CleanupDeletes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replication",
			Name:      "cleanup_deletes_total",
			Help:      "Total number of verified hot-side cleanup deletions",
		}, []string{"table"}),

		LastSuccessfulFlush: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_flush_timestamp",
			Help:      "Unix timestamp of the last successful flush",
		}),
		LastSuccessfulReplica: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_replication_timestamp",
			Help:      "Unix timestamp of the last verified replication window",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
