package bcache

import (
	"log/slog"
	"time"

	"github.com/hupe1980/kcore/param"
)

// Metrics receives cache events.
type Metrics interface {
	RecordBufferGet(hit bool)
	RecordEviction(from, to int)
	RecordDiskIO(write bool, d time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordBufferGet(bool)                    {}
func (noopMetrics) RecordEviction(int, int)                 {}
func (noopMetrics) RecordDiskIO(bool, time.Duration, error) {}

type options struct {
	nbuf    int
	nbucket int
	logger  *slog.Logger
	metrics Metrics
}

// Option configures a Cache.
type Option func(*options)

// WithBuffers sets the pool size. Values below 1 are ignored.
func WithBuffers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.nbuf = n
		}
	}
}

// WithBuckets sets the number of shards. Values below 1 are ignored.
func WithBuckets(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.nbucket = n
		}
	}
}

// WithLogger sets the logger for evictions and halts.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func defaultOptions() options {
	return options{
		nbuf:    param.NBUF,
		nbucket: param.NBUCKET,
		metrics: noopMetrics{},
	}
}
