package hnsw

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a point-in-time snapshot of an index's process-visible counters.
// None of these are persisted; they reset to zero on process restart.
type Stats struct {
	DistCalculations uint64
	Hops             uint64
	Inserts          uint64
	InsertErrors     uint64
	Searches         uint64
	SearchErrors     uint64
	CurElementCount  uint32
}

// MetricsCollector receives notifications of index operations. Implementations
// must not block or retry; the core never waits on a collector.
type MetricsCollector interface {
	RecordInsert(duration time.Duration, err error)
	RecordBatchInsert(count int, failed int, duration time.Duration)
	RecordSearch(k int, duration time.Duration, err error)
	RecordDelete(err error)
}

type noopMetricsCollector struct{}

func (noopMetricsCollector) RecordInsert(time.Duration, error)         {}
func (noopMetricsCollector) RecordBatchInsert(int, int, time.Duration) {}
func (noopMetricsCollector) RecordSearch(int, time.Duration, error)    {}
func (noopMetricsCollector) RecordDelete(error)                       {}

// NoopMetricsCollector returns a MetricsCollector that discards everything.
// It is the default when no collector is configured via WithMetricsCollector.
func NoopMetricsCollector() MetricsCollector { return noopMetricsCollector{} }

// counters holds the per-index atomic counters backing Stats(). These are
// never process-global: each *Index owns its own set.
type counters struct {
	distCalculations atomic.Uint64
	hops             atomic.Uint64
	inserts          atomic.Uint64
	insertErrors     atomic.Uint64
	searches         atomic.Uint64
	searchErrors     atomic.Uint64
}

// PrometheusCollector publishes the same events as counters, but as
// Prometheus instruments, for indexes that want them scraped.
type PrometheusCollector struct {
	insertDuration prometheus.Histogram
	insertErrors   prometheus.Counter
	searchDuration prometheus.Histogram
	searchErrors   prometheus.Counter
	batchInserts   prometheus.Counter
	batchFailures  prometheus.Counter
	deleteErrors   prometheus.Counter
}

// NewPrometheusCollector creates a PrometheusCollector and registers its
// instruments with reg. namespace/subsystem follow the usual Prometheus
// naming convention, e.g. NewPrometheusCollector(reg, "myapp", "hnsw").
func NewPrometheusCollector(reg prometheus.Registerer, namespace, subsystem string) *PrometheusCollector {
	c := &PrometheusCollector{
		insertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "insert_duration_seconds", Help: "AddPoint latency in seconds.",
		}),
		insertErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "insert_errors_total", Help: "AddPoint calls that returned an error.",
		}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "search_duration_seconds", Help: "SearchKnn latency in seconds.",
		}),
		searchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "search_errors_total", Help: "SearchKnn calls that returned an error.",
		}),
		batchInserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "batch_inserts_total", Help: "Vectors submitted via AddBatch.",
		}),
		batchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "batch_insert_failures_total", Help: "AddBatch calls that returned an error.",
		}),
		deleteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "delete_errors_total", Help: "MarkDeleted/UnmarkDeleted calls that returned an error.",
		}),
	}

	reg.MustRegister(
		c.insertDuration, c.insertErrors,
		c.searchDuration, c.searchErrors,
		c.batchInserts, c.batchFailures,
		c.deleteErrors,
	)

	return c
}

func (c *PrometheusCollector) RecordInsert(duration time.Duration, err error) {
	c.insertDuration.Observe(duration.Seconds())
	if err != nil {
		c.insertErrors.Inc()
	}
}

func (c *PrometheusCollector) RecordBatchInsert(count int, failed int, duration time.Duration) {
	c.batchInserts.Add(float64(count))
	c.batchFailures.Add(float64(failed))
}

func (c *PrometheusCollector) RecordSearch(k int, duration time.Duration, err error) {
	c.searchDuration.Observe(duration.Seconds())
	if err != nil {
		c.searchErrors.Inc()
	}
}

func (c *PrometheusCollector) RecordDelete(err error) {
	if err != nil {
		c.deleteErrors.Inc()
	}
}
