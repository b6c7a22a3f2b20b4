// Package spinlock implements the spin-class mutual exclusion lock.
//
// Acquire busy-waits and keeps interrupts off on the holding core for as long
// as the lock is held, so an interrupt handler on the same core cannot
// re-enter and deadlock against it. Critical sections must be short.
package spinlock

import (
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/hupe1980/kcore/internal/cpu"
	"github.com/hupe1980/kcore/internal/fatal"
)

// Spinlock is a busy-wait lock owned by a core. The zero value is an
// unlocked, unnamed lock.
type Spinlock struct {
	locked atomic.Uint32
	holder atomic.Pointer[cpu.CPU] // for debugging and Holding
	name   string
	logger *slog.Logger
}

// New returns a named lock. Contract violations are logged to logger.
func New(name string, logger *slog.Logger) *Spinlock {
	lk := &Spinlock{}
	lk.Init(name, logger)
	return lk
}

// Init names a lock that is embedded by value.
func (lk *Spinlock) Init(name string, logger *slog.Logger) {
	lk.name = name
	lk.logger = logger
}

// Name returns the lock's name.
func (lk *Spinlock) Name() string { return lk.name }

// Acquire spins until the lock is taken by c. Acquiring a lock that c
// already holds is fatal.
func (lk *Spinlock) Acquire(c *cpu.CPU) {
	c.PushOff() // disable interrupts to avoid deadlock
	if lk.Holding(c) {
		fatal.Halt(lk.logger, "acquire", "%s already held by %s", lk.name, c)
	}

	for !lk.locked.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}

	lk.holder.Store(c)
}

// TryAcquire takes the lock if it is free and reports whether it did.
func (lk *Spinlock) TryAcquire(c *cpu.CPU) bool {
	c.PushOff()
	if lk.Holding(c) {
		fatal.Halt(lk.logger, "acquire", "%s already held by %s", lk.name, c)
	}
	if !lk.locked.CompareAndSwap(0, 1) {
		c.PopOff()
		return false
	}
	lk.holder.Store(c)
	return true
}

// Release releases the lock. Releasing a lock c does not hold is fatal.
func (lk *Spinlock) Release(c *cpu.CPU) {
	if !lk.Holding(c) {
		fatal.Halt(lk.logger, "release", "%s not held by %s", lk.name, c)
	}

	lk.holder.Store(nil)
	lk.locked.Store(0)

	c.PopOff()
}

// Holding reports whether c holds the lock.
// Interrupts must be off, which is true whenever the answer matters.
func (lk *Spinlock) Holding(c *cpu.CPU) bool {
	return lk.locked.Load() == 1 && lk.holder.Load() == c
}

// Locked reports whether any core holds the lock. The answer may be stale by
// the time the caller looks at it.
func (lk *Spinlock) Locked() bool {
	return lk.locked.Load() == 1
}
