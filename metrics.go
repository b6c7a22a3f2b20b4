package kcore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus; see package promcollector.
//
// It is passed to both the buffer cache and the page allocator.
type MetricsCollector interface {
	// RecordBufferGet is called for every buffer lookup.
	RecordBufferGet(hit bool)

	// RecordEviction is called when a cached block is replaced. from is the
	// shard the victim came from, to the shard of the new block.
	RecordEviction(from, to int)

	// RecordDiskIO is called after each block transfer.
	RecordDiskIO(write bool, duration time.Duration, err error)

	// RecordPageAlloc is called after each page allocation attempt.
	// err is nil on success.
	RecordPageAlloc(cpu int, stolen bool, err error)

	// RecordPageFree is called after each page free.
	RecordPageFree(cpu int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBufferGet(bool)                    {}
func (NoopMetricsCollector) RecordEviction(int, int)                 {}
func (NoopMetricsCollector) RecordDiskIO(bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordPageAlloc(int, bool, error)        {}
func (NoopMetricsCollector) RecordPageFree(int)                      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BufferHits      atomic.Int64
	BufferMisses    atomic.Int64
	Evictions       atomic.Int64
	DiskReads       atomic.Int64
	DiskWrites      atomic.Int64
	DiskErrors      atomic.Int64
	DiskTotalNanos  atomic.Int64
	PageAllocs      atomic.Int64
	PageSteals      atomic.Int64
	PageAllocFailed atomic.Int64
	PageFrees       atomic.Int64
}

// RecordBufferGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBufferGet(hit bool) {
	if hit {
		b.BufferHits.Add(1)
	} else {
		b.BufferMisses.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(from, to int) {
	b.Evictions.Add(1)
}

// RecordDiskIO implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDiskIO(write bool, duration time.Duration, err error) {
	if write {
		b.DiskWrites.Add(1)
	} else {
		b.DiskReads.Add(1)
	}
	b.DiskTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DiskErrors.Add(1)
	}
}

// RecordPageAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPageAlloc(cpu int, stolen bool, err error) {
	if err != nil {
		b.PageAllocFailed.Add(1)
		return
	}
	b.PageAllocs.Add(1)
	if stolen {
		b.PageSteals.Add(1)
	}
}

// RecordPageFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPageFree(cpu int) {
	b.PageFrees.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BufferHits:      b.BufferHits.Load(),
		BufferMisses:    b.BufferMisses.Load(),
		Evictions:       b.Evictions.Load(),
		DiskReads:       b.DiskReads.Load(),
		DiskWrites:      b.DiskWrites.Load(),
		DiskErrors:      b.DiskErrors.Load(),
		DiskAvgNanos:    b.getAvgDiskNanos(),
		PageAllocs:      b.PageAllocs.Load(),
		PageSteals:      b.PageSteals.Load(),
		PageAllocFailed: b.PageAllocFailed.Load(),
		PageFrees:       b.PageFrees.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgDiskNanos() int64 {
	count := b.DiskReads.Load() + b.DiskWrites.Load()
	if count == 0 {
		return 0
	}
	return b.DiskTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BufferHits      int64
	BufferMisses    int64
	Evictions       int64
	DiskReads       int64
	DiskWrites      int64
	DiskErrors      int64
	DiskAvgNanos    int64
	PageAllocs      int64
	PageSteals      int64
	PageAllocFailed int64
	PageFrees       int64
}

// HitRatio returns hits / (hits + misses), or 0 before the first lookup.
func (s BasicMetricsStats) HitRatio() float64 {
	total := s.BufferHits + s.BufferMisses
	if total == 0 {
		return 0
	}
	return float64(s.BufferHits) / float64(total)
}
