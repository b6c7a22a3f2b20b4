package pagealloc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/kcore/internal/cpu"
	"github.com/hupe1980/kcore/internal/fatal"
	"github.com/hupe1980/kcore/internal/spinlock"
	"github.com/hupe1980/kcore/param"
	"github.com/hupe1980/kcore/physmem"
	"github.com/hupe1980/kcore/resource"
)

// ErrOutOfMemory is returned by Alloc when no CPU has a free page.
var ErrOutOfMemory = errors.New("pagealloc: out of memory")

// kmem is one CPU's free list.
type kmem struct {
	lk       spinlock.Spinlock
	freelist uintptr // 0 if empty
	nfree    int
}

// Allocator hands out the pages of [PGROUNDUP(mem.End()), mem.Top()).
type Allocator struct {
	mem     *physmem.Memory
	kmems   []kmem
	start   uintptr
	end     uintptr
	npages  int
	logger  *slog.Logger
	metrics Metrics
	rc      *resource.Controller

	// Checked mode: page numbers currently allocated.
	checked   bool
	trackLk   spinlock.Spinlock
	allocated *roaring.Bitmap

	allocs      atomic.Int64
	steals      atomic.Int64
	frees       atomic.Int64
	ooms        atomic.Int64
	outstanding atomic.Int64
}

// New creates one empty free list per CPU of m, then frees every page of the
// allocation area on boot, leaving them all on boot's list.
func New(m *cpu.Machine, mem *physmem.Memory, boot *cpu.CPU, optFns ...Option) *Allocator {
	o := options{metrics: noopMetrics{}}
	for _, fn := range optFns {
		fn(&o)
	}
	logger := fatal.OrDiscard(o.logger)

	a := &Allocator{
		mem:     mem,
		kmems:   make([]kmem, m.NCPU()),
		start:   param.PGROUNDUP(mem.End()),
		end:     mem.Top(),
		logger:  logger,
		metrics: o.metrics,
		rc:      o.rc,
		checked: o.checked,
	}
	for i := range a.kmems {
		a.kmems[i].lk.Init("kmem", logger)
	}
	if a.checked {
		a.trackLk.Init("kmem.track", logger)
		a.allocated = roaring.New()
	}

	for pa := a.start; pa+param.PGSIZE <= a.end; pa += param.PGSIZE {
		a.free(boot, pa)
		a.npages++
	}

	logger.Debug("page allocator ready",
		slog.Int("pages", a.npages),
		slog.String("start", fmt.Sprintf("%#x", a.start)),
		slog.String("end", fmt.Sprintf("%#x", a.end)),
		slog.Bool("checked", a.checked))
	return a
}

// Pages returns the number of pages managed.
func (a *Allocator) Pages() int { return a.npages }

// Range returns the allocation area [start, end).
func (a *Allocator) Range() (start, end uintptr) { return a.start, a.end }

// Page returns the contents of an allocated page.
func (a *Allocator) Page(pa uintptr) []byte { return a.mem.Page(pa) }

// cpuid reads c's id with interrupts off, so the thread cannot be moved
// between reading and using it.
func cpuid(c *cpu.CPU) int {
	c.PushOff()
	id := c.ID()
	c.PopOff()
	return id
}

func (a *Allocator) pfn(pa uintptr) uint32 {
	return uint32((pa - a.start) >> param.PGSHIFT)
}

func (a *Allocator) pop(k *kmem) uintptr {
	r := k.freelist
	if r != 0 {
		k.freelist = uintptr(a.mem.Load64(r))
		k.nfree--
	}
	return r
}

// Alloc returns one page filled with param.AllocJunk. It takes from c's own
// list, then steals from the other CPUs in ascending order. It returns
// ErrOutOfMemory when every list is empty or the memory budget is spent.
func (a *Allocator) Alloc(c *cpu.CPU) (uintptr, error) {
	id := cpuid(c)

	if !a.rc.TryAcquireMemory(param.PGSIZE) {
		a.ooms.Add(1)
		err := fmt.Errorf("%w: %w", ErrOutOfMemory, resource.ErrMemoryLimitExceeded)
		a.metrics.RecordPageAlloc(id, false, err)
		return 0, err
	}

	own := &a.kmems[id]
	own.lk.Acquire(c)
	r := a.pop(own)
	own.lk.Release(c)

	stolen := false
	if r == 0 {
		// Own lock is dropped so two stealing CPUs never wait on each other.
		for i := range a.kmems {
			if i == id {
				continue
			}
			k := &a.kmems[i]
			k.lk.Acquire(c)
			r = a.pop(k)
			k.lk.Release(c)
			if r != 0 {
				stolen = true
				a.steals.Add(1)
				a.logger.Debug("steal", slog.Int("cpu", id), slog.Int("from", i))
				break
			}
		}
	}

	if r == 0 {
		a.rc.ReleaseMemory(param.PGSIZE)
		a.ooms.Add(1)
		a.metrics.RecordPageAlloc(id, false, ErrOutOfMemory)
		return 0, ErrOutOfMemory
	}

	if a.checked {
		a.trackLk.Acquire(c)
		a.allocated.Add(a.pfn(r))
		a.trackLk.Release(c)
	}

	a.mem.Memset(r, param.AllocJunk, param.PGSIZE)
	a.allocs.Add(1)
	a.outstanding.Add(1)
	a.metrics.RecordPageAlloc(id, stolen, nil)
	return r, nil
}

// Free returns page pa to c's free list. pa must be page aligned and inside
// the allocation area; anything else halts.
func (a *Allocator) Free(c *cpu.CPU, pa uintptr) {
	if pa%param.PGSIZE != 0 || pa < a.mem.End() || pa >= a.end {
		fatal.Halt(a.logger, "kfree", "bad page address %#x", pa)
	}

	if a.checked {
		a.trackLk.Acquire(c)
		ok := a.allocated.CheckedRemove(a.pfn(pa))
		a.trackLk.Release(c)
		if !ok {
			fatal.Halt(a.logger, "kfree", "page %#x is not allocated", pa)
		}
	}

	id := a.free(c, pa)
	a.rc.ReleaseMemory(param.PGSIZE)
	a.frees.Add(1)
	a.outstanding.Add(-1)
	a.metrics.RecordPageFree(id)
}

// free fills pa with junk and pushes it on c's list.
func (a *Allocator) free(c *cpu.CPU, pa uintptr) int {
	a.mem.Memset(pa, param.FreeJunk, param.PGSIZE)

	id := cpuid(c)
	k := &a.kmems[id]
	k.lk.Acquire(c)
	a.mem.Store64(pa, uint64(k.freelist))
	k.freelist = pa
	k.nfree++
	k.lk.Release(c)
	return id
}
