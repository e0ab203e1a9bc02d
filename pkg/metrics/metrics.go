package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Engine-wide operation counters.
	ReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ukv_reads_total",
			Help: "Total number of point reads by collection",
		},
		[]string{"collection"},
	)

	WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ukv_writes_total",
			Help: "Total number of batched writes by collection",
		},
		[]string{"collection"},
	)

	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ukv_scans_total",
			Help: "Total number of range scans by collection",
		},
		[]string{"collection"},
	)

	CollectionCardinality = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ukv_collection_cardinality",
			Help: "Last measured live-entry count per collection",
		},
		[]string{"collection"},
	)

	// Transaction metrics.
	TransactionsBegun = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ukv_transactions_begun_total",
			Help: "Total number of transactions begun",
		},
	)

	TransactionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ukv_transaction_conflicts_total",
			Help: "Total number of transactions that failed to stage due to a watch-set conflict",
		},
	)

	CommitLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ukv_commit_latency_seconds",
			Help:    "Time taken to stage and commit a transaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Arena metrics.
	ArenaBlocksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ukv_arena_blocks_total",
			Help: "Current number of allocated arena blocks across live requests",
		},
	)

	// Modality-specific operation metrics.
	DocumentGatherDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ukv_document_gather_duration_seconds",
			Help:    "Time taken to gather a columnar projection over a document batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	GraphEdgeOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ukv_graph_edge_ops_total",
			Help: "Total number of graph edge mutations by operation",
		},
		[]string{"op"},
	)

	PathBucketCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ukv_path_bucket_collisions_total",
			Help: "Total number of path writes that landed in an already-occupied bucket",
		},
	)

	// Server-facing request metrics.
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ukv_api_requests_total",
			Help: "Total number of remote-transport requests by command and status",
		},
		[]string{"command", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ukv_api_request_duration_seconds",
			Help:    "Remote-transport request duration in seconds by command",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(
		ReadsTotal,
		WritesTotal,
		ScansTotal,
		CollectionCardinality,
		TransactionsBegun,
		TransactionConflicts,
		CommitLatency,
		ArenaBlocksTotal,
		DocumentGatherDuration,
		GraphEdgeOpsTotal,
		PathBucketCollisions,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer started at the current time.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
