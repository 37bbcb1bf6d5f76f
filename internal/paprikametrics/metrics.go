// Package paprikametrics provides Prometheus instrumentation for Paprika.
//
// Unlike a typical service, Paprika never exposes an HTTP /metrics endpoint
// itself (network exposure is a non-goal of the engine) — the embedder
// registers the metrics below into a *prometheus.Registry it controls and
// exposes however it likes.
package paprikametrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters and gauges the paged store and blockchain
// layer update on their hot paths. All fields are safe for concurrent use
// (they are Prometheus collectors).
type Metrics struct {
	PagesAllocatedTotal   prometheus.Counter
	PagesAbandonedTotal   prometheus.Counter
	PagesReclaimedTotal   prometheus.Counter
	PageManagerSizeBytes  prometheus.Gauge
	BatchCommitsTotal     *prometheus.CounterVec // label: "result" = committed|aborted
	BatchCommitDuration   prometheus.Histogram
	FinalizeDuration      prometheus.Histogram
	FinalizeBlocksTotal   prometheus.Counter
	PendingDAGDepth       prometheus.Gauge
	ReadOnlyBatchesActive prometheus.Gauge
	BufferPoolPagesRented prometheus.Gauge
	BufferPoolAllocatedMB prometheus.Gauge
}

// New creates a fresh Metrics set and registers it into reg. Passing a
// freshly constructed *prometheus.Registry (rather than the global default)
// is what lets multiple PagedDb instances coexist in the same process
// without name collisions.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		PagesAllocatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paprika_pages_allocated_total",
			Help: "Total number of pages allocated from the arena or free list.",
		}),
		PagesAbandonedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paprika_pages_abandoned_total",
			Help: "Total number of pages registered for future reuse by copy-on-write.",
		}),
		PagesReclaimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paprika_pages_reclaimed_total",
			Help: "Total number of abandoned pages returned to the free list.",
		}),
		PageManagerSizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paprika_page_manager_size_bytes",
			Help: "Size of the mapped page arena in bytes.",
		}),
		BatchCommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paprika_batch_commits_total",
			Help: "Total number of read-write batch terminations, by result.",
		}, []string{"result"}),
		BatchCommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paprika_batch_commit_duration_seconds",
			Help:    "Duration of read-write batch commit, including msync.",
			Buckets: prometheus.DefBuckets,
		}),
		FinalizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paprika_finalize_duration_seconds",
			Help:    "Duration of a single Blockchain.Finalize call.",
			Buckets: prometheus.DefBuckets,
		}),
		FinalizeBlocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paprika_finalize_blocks_total",
			Help: "Total number of pending blocks drained into the paged store.",
		}),
		PendingDAGDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paprika_pending_dag_depth",
			Help: "Number of pending blocks currently held by the blockchain layer.",
		}),
		ReadOnlyBatchesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paprika_read_only_batches_active",
			Help: "Number of read-only batches currently pinning a root.",
		}),
		BufferPoolPagesRented: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paprika_buffer_pool_pages_rented",
			Help: "Number of in-memory buffer pool pages currently rented out.",
		}),
		BufferPoolAllocatedMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paprika_buffer_pool_allocated_mb",
			Help: "Total megabytes ever allocated by the in-memory buffer pool.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PagesAllocatedTotal,
			m.PagesAbandonedTotal,
			m.PagesReclaimedTotal,
			m.PageManagerSizeBytes,
			m.BatchCommitsTotal,
			m.BatchCommitDuration,
			m.FinalizeDuration,
			m.FinalizeBlocksTotal,
			m.PendingDAGDepth,
			m.ReadOnlyBatchesActive,
			m.BufferPoolPagesRented,
			m.BufferPoolAllocatedMB,
		)
	}

	return m
}

// Noop returns a Metrics set that is not registered anywhere; used as the
// default when a component is opened without an explicit registry.
func Noop() *Metrics {
	return New(nil)
}

// ObserveSince records duration since start on h. Small helper to keep
// call sites (defer-free, since commit paths return errors) terse.
func ObserveSince(h prometheus.Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
