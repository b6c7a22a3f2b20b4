package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hupe1980/kcore/param"
)

// ErrMemoryLimitExceeded is returned when a memory reservation would exceed the budget.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes caps the bytes of physical pages handed out at once.
	// If 0, usage is tracked but not limited.
	MemoryLimitBytes int64

	// MaxInflightTransfers caps concurrent disk transfers.
	// If 0, transfers are not limited.
	MaxInflightTransfers int64

	// IOLimitBytesPerSec caps disk throughput. The burst is at least one
	// block, so limits below param.BSIZE still admit transfers, just slowly.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller governs memory and disk I/O shared by the whole machine.
// A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	// Memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Disk
	xferSem   *semaphore.Weighted // nil if unlimited
	ioLimiter *rate.Limiter       // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.MaxInflightTransfers > 0 {
		c.xferSem = semaphore.NewWeighted(cfg.MaxInflightTransfers)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		// The burst must admit one whole block or every transfer fails.
		burst := max(cfg.IOLimitBytesPerSec, param.BSIZE)
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(burst))
	}

	return c
}

// TryAcquireMemory reserves bytes without blocking.
// Returns false if the limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// AcquireMemory is TryAcquireMemory with an error result.
func (c *Controller) AcquireMemory(bytes int64) error {
	if !c.TryAcquireMemory(bytes) {
		return ErrMemoryLimitExceeded
	}
	return nil
}

// ReleaseMemory releases reserved memory. Releasing more than is reserved
// releases only what is reserved.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	for {
		used := c.memUsed.Load()
		n := min(bytes, used)
		if n <= 0 {
			return
		}
		if c.memUsed.CompareAndSwap(used, used-n) {
			if c.memSem != nil {
				c.memSem.Release(n)
			}
			return
		}
	}
}

// MemoryUsage returns the bytes currently reserved.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireTransfer reserves a disk transfer slot and waits until the IO limit
// admits bytes. It blocks until both are available or ctx is done. Every
// successful call must be paired with ReleaseTransfer.
func (c *Controller) AcquireTransfer(ctx context.Context, bytes int) error {
	if c == nil {
		return nil
	}

	if c.xferSem != nil {
		if err := c.xferSem.Acquire(ctx, 1); err != nil {
			return err
		}
	}

	if c.ioLimiter != nil {
		if err := c.ioLimiter.WaitN(ctx, bytes); err != nil {
			if c.xferSem != nil {
				c.xferSem.Release(1)
			}
			return err
		}
	}
	return nil
}

// ReleaseTransfer releases a slot taken by AcquireTransfer.
func (c *Controller) ReleaseTransfer() {
	if c == nil || c.xferSem == nil {
		return
	}
	c.xferSem.Release(1)
}

// TryAcquireIO attempts to take IO tokens without blocking.
func (c *Controller) TryAcquireIO(bytes int) bool {
	if c == nil || c.ioLimiter == nil {
		return true
	}
	return c.ioLimiter.AllowN(time.Now(), bytes)
}
