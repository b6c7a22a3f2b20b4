// Package sleeplock implements the sleep-class lock: a long-term lock that
// parks the caller instead of spinning, so it may be held across disk I/O.
//
// Waiters queue in arrival order. Release hands ownership straight to the
// oldest waiter, which makes the lock FIFO-fair and means a releasing thread
// can never barge back in ahead of a queued one.
//
// Each successful Acquire returns a Ticket that identifies the holder. Only
// the current ticket may release the lock.
package sleeplock

import (
	"log/slog"
	"sync/atomic"

	"github.com/hupe1980/kcore/internal/cpu"
	"github.com/hupe1980/kcore/internal/fatal"
	"github.com/hupe1980/kcore/internal/spinlock"
)

// Ticket identifies one hold of a Lock. The zero Ticket is never issued.
type Ticket uint64

var nextTicket atomic.Uint64

type waiter struct {
	ticket Ticket
	wake   chan struct{}
}

// Lock is a sleep lock. The zero value is unusable; call Init or New.
type Lock struct {
	lk      spinlock.Spinlock // protects this sleep lock
	locked  bool
	holder  atomic.Uint64
	waiters []waiter
	name    string
	logger  *slog.Logger
}

// New returns a named sleep lock.
func New(name string, logger *slog.Logger) *Lock {
	l := &Lock{}
	l.Init(name, logger)
	return l
}

// Init names a lock that is embedded by value.
func (l *Lock) Init(name string, logger *slog.Logger) {
	l.lk.Init("sleep lock", logger)
	l.name = name
	l.logger = logger
}

// Acquire takes the lock, parking the calling thread until it is free.
// The calling core must not hold any spin lock.
func (l *Lock) Acquire(c *cpu.CPU) Ticket {
	if c.Depth() > 0 {
		fatal.Halt(l.logger, "acquiresleep", "%s: %s holds a spin lock", l.name, c)
	}

	t := Ticket(nextTicket.Add(1))

	l.lk.Acquire(c)
	if !l.locked {
		l.locked = true
		l.holder.Store(uint64(t))
		l.lk.Release(c)
		return t
	}

	w := waiter{ticket: t, wake: make(chan struct{})}
	l.waiters = append(l.waiters, w)
	l.lk.Release(c)

	<-w.wake // ownership was handed to t by Release
	return t
}

// Release releases the lock held under t and wakes the oldest waiter.
func (l *Lock) Release(c *cpu.CPU, t Ticket) {
	l.lk.Acquire(c)
	if !l.locked || Ticket(l.holder.Load()) != t {
		l.lk.Release(c)
		fatal.Halt(l.logger, "releasesleep", "%s not held by ticket %d", l.name, t)
	}

	if len(l.waiters) > 0 {
		w := l.waiters[0]
		l.waiters[0] = waiter{}
		l.waiters = l.waiters[1:]
		l.holder.Store(uint64(w.ticket))
		close(w.wake)
	} else {
		l.locked = false
		l.holder.Store(0)
	}
	l.lk.Release(c)
}

// Holding reports whether t is the current holder.
func (l *Lock) Holding(t Ticket) bool {
	return t != 0 && Ticket(l.holder.Load()) == t
}

// Waiters returns the number of parked threads.
func (l *Lock) Waiters(c *cpu.CPU) int {
	l.lk.Acquire(c)
	defer l.lk.Release(c)
	return len(l.waiters)
}
