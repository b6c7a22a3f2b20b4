package promcollector

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/kcore"
)

// Collector exports kcore metrics to Prometheus.
type Collector struct {
	bufferGets *prometheus.CounterVec
	evictions  *prometheus.CounterVec
	diskIO     *prometheus.HistogramVec
	diskErrors *prometheus.CounterVec
	pageAllocs *prometheus.CounterVec
	pageFrees  *prometheus.CounterVec
}

var _ kcore.MetricsCollector = (*Collector)(nil)

// Options configures New.
type Options struct {
	// Namespace prefixes every metric name. Defaults to "kcore".
	Namespace string
	// Registerer receives the metrics. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// DiskBuckets are the histogram buckets for disk latency in seconds.
	DiskBuckets []float64
}

// New creates a collector and registers its metrics.
func New(optFns ...func(o *Options)) (*Collector, error) {
	opts := Options{
		Namespace:   "kcore",
		Registerer:  prometheus.DefaultRegisterer,
		DiskBuckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &Collector{
		bufferGets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: "bcache",
			Name:      "gets_total",
			Help:      "Buffer lookups by result (hit or miss).",
		}, []string{"result"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: "bcache",
			Name:      "evictions_total",
			Help:      "Cached blocks replaced, by whether the victim came from another shard.",
		}, []string{"cross_shard"}),
		diskIO: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Subsystem: "disk",
			Name:      "transfer_duration_seconds",
			Help:      "Block transfer latency.",
			Buckets:   opts.DiskBuckets,
		}, []string{"op"}),
		diskErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: "disk",
			Name:      "errors_total",
			Help:      "Failed block transfers.",
		}, []string{"op"}),
		pageAllocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: "kalloc",
			Name:      "allocs_total",
			Help:      "Page allocations by cpu and result (local, stolen or oom).",
		}, []string{"cpu", "result"}),
		pageFrees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: "kalloc",
			Name:      "frees_total",
			Help:      "Page frees by cpu.",
		}, []string{"cpu"}),
	}

	for _, m := range []prometheus.Collector{
		c.bufferGets, c.evictions, c.diskIO, c.diskErrors, c.pageAllocs, c.pageFrees,
	} {
		if err := opts.Registerer.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordBufferGet implements kcore.MetricsCollector.
func (c *Collector) RecordBufferGet(hit bool) {
	if hit {
		c.bufferGets.WithLabelValues("hit").Inc()
	} else {
		c.bufferGets.WithLabelValues("miss").Inc()
	}
}

// RecordEviction implements kcore.MetricsCollector.
func (c *Collector) RecordEviction(from, to int) {
	c.evictions.WithLabelValues(strconv.FormatBool(from != to)).Inc()
}

// RecordDiskIO implements kcore.MetricsCollector.
func (c *Collector) RecordDiskIO(write bool, d time.Duration, err error) {
	op := "read"
	if write {
		op = "write"
	}
	c.diskIO.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		c.diskErrors.WithLabelValues(op).Inc()
	}
}

// RecordPageAlloc implements kcore.MetricsCollector.
func (c *Collector) RecordPageAlloc(cpu int, stolen bool, err error) {
	result := "local"
	switch {
	case err != nil:
		result = "oom"
	case stolen:
		result = "stolen"
	}
	c.pageAllocs.WithLabelValues(strconv.Itoa(cpu), result).Inc()
}

// RecordPageFree implements kcore.MetricsCollector.
func (c *Collector) RecordPageFree(cpu int) {
	c.pageFrees.WithLabelValues(strconv.Itoa(cpu)).Inc()
}
