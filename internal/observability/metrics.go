package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the replay buffer daemon.
type Metrics struct {
	// Insert path
	ItemsInsertedTotal      *prometheus.CounterVec
	ChunksInsertedTotal     prometheus.Counter
	ChunksDeduplicatedTotal prometheus.Counter
	InsertQueueDepth        prometheus.Gauge
	RetentionViolations     prometheus.Counter

	// Sample path
	SamplesServedTotal     *prometheus.CounterVec
	SampleBatchSize        prometheus.Histogram
	SampleFrameBytes       prometheus.Histogram
	SampleFramesPerSample  prometheus.Histogram
	RateLimiterWaitSeconds prometheus.Histogram

	// Chunk store
	ChunkStoreSize      prometheus.Gauge
	ChunkStoreBytes     prometheus.Gauge
	ChunkEvictionsTotal prometheus.Counter

	// Checkpoint
	CheckpointsTotal   *prometheus.CounterVec
	CheckpointDuration prometheus.Histogram

	// RPC
	RPCRequestsTotal *prometheus.CounterVec
	RPCErrorsTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ItemsInsertedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replaybuffer_items_inserted_total",
				Help: "Items inserted into a table, by table name",
			},
			[]string{"table"},
		),
		ChunksInsertedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "replaybuffer_chunks_inserted_total",
				Help: "Chunks accepted by ChunkStore.Insert (including deduplicated ones)",
			},
		),
		ChunksDeduplicatedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "replaybuffer_chunks_deduplicated_total",
				Help: "Inserts that returned an already-present chunk",
			},
		),
		InsertQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "replaybuffer_insert_queue_depth",
				Help: "Current occupancy of the read-ahead insert queue (0 or 1)",
			},
		),
		RetentionViolations: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "replaybuffer_retention_violations_total",
				Help: "Fatal retention contract violations observed on InsertStream",
			},
		),

		SamplesServedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replaybuffer_samples_served_total",
				Help: "Sampled items served, by table name",
			},
			[]string{"table"},
		),
		SampleBatchSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "replaybuffer_sample_batch_size",
				Help:    "Size of each SampleFlexibleBatch call",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
			},
		),
		SampleFrameBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "replaybuffer_sample_frame_bytes",
				Help:    "Size of outgoing SampleStream response frames",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),
		SampleFramesPerSample: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "replaybuffer_sample_frames_per_item",
				Help:    "Number of response frames a single sampled item was split across",
				Buckets: []float64{1, 2, 3, 4, 5, 8, 16},
			},
		),
		RateLimiterWaitSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "replaybuffer_rate_limiter_wait_seconds",
				Help:    "Time SampleFlexibleBatch spent blocked on the rate limiter",
				Buckets: prometheus.DefBuckets,
			},
		),

		ChunkStoreSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "replaybuffer_chunk_store_size",
				Help: "Number of chunks currently resident in the ChunkStore",
			},
		),
		ChunkStoreBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "replaybuffer_chunk_store_bytes",
				Help: "Approximate bytes resident in the ChunkStore",
			},
		),
		ChunkEvictionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "replaybuffer_chunk_evictions_total",
				Help: "Chunks whose last strong reference was dropped",
			},
		),

		CheckpointsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replaybuffer_checkpoints_total",
				Help: "Checkpoint attempts, by result",
			},
			[]string{"result"},
		),
		CheckpointDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "replaybuffer_checkpoint_duration_seconds",
				Help:    "Checkpoint save latency",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),

		RPCRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replaybuffer_rpc_requests_total",
				Help: "RPC calls received, by method",
			},
			[]string{"method"},
		),
		RPCErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replaybuffer_rpc_errors_total",
				Help: "RPC calls that ended in a non-OK status, by method and code",
			},
			[]string{"method", "code"},
		),
	}
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
