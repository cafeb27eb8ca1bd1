package hnsw

import "github.com/SehyeonOh/hnswlib/distance"

// Options holds the configuration resolved from functional Options passed to New.
type Options struct {
	Dimension      int
	MaxElements    uint32
	M              int
	EfConstruction int
	Ef             int
	Metric         distance.Metric
	Seed           int64
	NumShards      int
	NumWorkers     int
	Logger         *Logger
	Metrics        MetricsCollector
}

// Option configures an index at construction time.
type Option func(*Options)

// WithDimension sets the fixed vector dimension. Required.
func WithDimension(dim int) Option {
	return func(o *Options) { o.Dimension = dim }
}

// WithMaxElements sets the caller-declared capacity. Required.
func WithMaxElements(n uint32) Option {
	return func(o *Options) { o.MaxElements = n }
}

// WithM sets the target neighbor-list size per node on upper layers.
// Mmax0 on layer 0 is always 2*M. Default 16.
func WithM(m int) Option {
	return func(o *Options) { o.M = m }
}

// WithEfConstruction sets the beam width used while building neighbor lists
// at insertion time. Default 200.
func WithEfConstruction(ef int) Option {
	return func(o *Options) { o.EfConstruction = ef }
}

// WithEf sets the default search-time beam width. Can be changed later via
// SetEf. Default 50.
func WithEf(ef int) Option {
	return func(o *Options) { o.Ef = ef }
}

// WithMetric selects the distance metric. Default MetricL2.
func WithMetric(m distance.Metric) Option {
	return func(o *Options) { o.Metric = m }
}

// WithSeed fixes the random seed used for level sampling, making
// construction deterministic for a fixed single-threaded insertion order.
func WithSeed(seed int64) Option {
	return func(o *Options) { o.Seed = seed }
}

// WithNumShards sets the number of node-mutex and label-map shards.
// Default 256.
func WithNumShards(n int) Option {
	return func(o *Options) { o.NumShards = n }
}

// WithNumWorkers bounds the goroutine fan-out AddBatch uses to insert its
// vectors concurrently. 0 (the default) means GOMAXPROCS at call time,
// matching the driver's documented "num_threads: 0 meaning use hardware
// concurrency" convention.
func WithNumWorkers(n int) Option {
	return func(o *Options) { o.NumWorkers = n }
}

// WithLogger attaches a structured logger. Default is a no-op logger.
func WithLogger(l *Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMetricsCollector attaches a metrics collector, e.g. a Prometheus-backed
// one from NewPrometheusCollector. Default is a no-op collector.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *Options) { o.Metrics = m }
}

func defaultOptions() *Options {
	return &Options{
		M:              16,
		EfConstruction: 200,
		Ef:             50,
		Metric:         distance.MetricL2,
		Seed:           1,
		NumShards:      256,
		NumWorkers:     0,
		Logger:         NoopLogger(),
		Metrics:        NoopMetricsCollector(),
	}
}
