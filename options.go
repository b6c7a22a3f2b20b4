package kcore

import (
	"github.com/hupe1980/kcore/disk"
	"github.com/hupe1980/kcore/resource"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	disk             disk.Driver
	rc               *resource.Controller
	checkedFrees     *bool
}

// Option configures Boot.
type Option func(*options)

// WithLogger sets the logger shared by every subsystem.
// If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetrics installs a metrics collector for the buffer cache, the disk and
// the page allocator.
func WithMetrics(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithDisk replaces the driver described by Config.Disk.
func WithDisk(d disk.Driver) Option {
	return func(o *options) {
		o.disk = d
	}
}

// WithResourceController replaces the controller built from Config.Limits.
// The same controller may be shared by several kernels to enforce a global
// budget.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithCheckedFrees overrides Config.CheckedFrees.
func WithCheckedFrees(enabled bool) Option {
	return func(o *options) {
		o.checkedFrees = &enabled
	}
}
