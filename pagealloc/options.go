package pagealloc

import (
	"log/slog"

	"github.com/hupe1980/kcore/resource"
)

// Metrics receives allocator events.
type Metrics interface {
	RecordPageAlloc(cpu int, stolen bool, err error)
	RecordPageFree(cpu int)
}

type noopMetrics struct{}

func (noopMetrics) RecordPageAlloc(int, bool, error) {}
func (noopMetrics) RecordPageFree(int)               {}

type options struct {
	logger  *slog.Logger
	metrics Metrics
	rc      *resource.Controller
	checked bool
}

// Option configures an Allocator.
type Option func(*options)

// WithLogger sets the logger for steals and halts.
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

// WithResourceController charges PGSIZE bytes per outstanding page to rc.
// Alloc fails with ErrOutOfMemory once rc's memory budget is spent.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

// WithChecked enables double-free detection.
func WithChecked(enabled bool) Option {
	return func(o *options) { o.checked = enabled }
}
