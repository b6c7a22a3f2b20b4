package pagealloc

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/kcore/internal/cpu"
	"github.com/hupe1980/kcore/param"
)

// ErrInvariant is returned by CheckInvariants.
var ErrInvariant = errors.New("pagealloc: invariant violated")

// Stats is a snapshot of the allocator.
type Stats struct {
	Pages       int   // pages managed
	Free        []int // free pages per CPU
	Outstanding int64 // pages allocated and not yet freed
	Allocs      int64
	Steals      int64
	Frees       int64
	OOMs        int64
}

// TotalFree sums Free.
func (s Stats) TotalFree() int {
	n := 0
	for _, f := range s.Free {
		n += f
	}
	return n
}

// Stats snapshots the counters, locking one free list at a time.
func (a *Allocator) Stats(c *cpu.CPU) Stats {
	s := Stats{
		Pages:       a.npages,
		Free:        make([]int, len(a.kmems)),
		Outstanding: a.outstanding.Load(),
		Allocs:      a.allocs.Load(),
		Steals:      a.steals.Load(),
		Frees:       a.frees.Load(),
		OOMs:        a.ooms.Load(),
	}
	for i := range a.kmems {
		k := &a.kmems[i]
		k.lk.Acquire(c)
		s.Free[i] = k.nfree
		k.lk.Release(c)
	}
	return s
}

// CheckInvariants locks every free list and verifies that each free page is
// aligned, inside the allocation area and on exactly one list, that list
// lengths match their counts, and that free plus outstanding pages account
// for every page. In checked mode no free page may be marked allocated.
//
// The caller must ensure no Alloc or Free is in flight.
func (a *Allocator) CheckInvariants(c *cpu.CPU) error {
	for i := range a.kmems {
		a.kmems[i].lk.Acquire(c)
	}
	defer func() {
		for i := len(a.kmems) - 1; i >= 0; i-- {
			a.kmems[i].lk.Release(c)
		}
	}()

	free := roaring.New()
	for i := range a.kmems {
		k := &a.kmems[i]
		n := 0
		for pa := k.freelist; pa != 0; pa = uintptr(a.mem.Load64(pa)) {
			if pa%param.PGSIZE != 0 || pa < a.start || pa >= a.end {
				return fmt.Errorf("%w: cpu %d lists bad page %#x", ErrInvariant, i, pa)
			}
			if !free.CheckedAdd(a.pfn(pa)) {
				return fmt.Errorf("%w: page %#x is free twice", ErrInvariant, pa)
			}
			n++
		}
		if n != k.nfree {
			return fmt.Errorf("%w: cpu %d lists %d pages, counts %d", ErrInvariant, i, n, k.nfree)
		}
	}

	nfree := int64(free.GetCardinality())
	if out := a.outstanding.Load(); nfree+out != int64(a.npages) {
		return fmt.Errorf("%w: %d free + %d outstanding != %d pages", ErrInvariant, nfree, out, a.npages)
	}

	if a.checked {
		a.trackLk.Acquire(c)
		defer a.trackLk.Release(c)
		if free.Intersects(a.allocated) {
			return fmt.Errorf("%w: a page is both free and allocated", ErrInvariant)
		}
		if int64(a.allocated.GetCardinality()) != a.outstanding.Load() {
			return fmt.Errorf("%w: %d pages tracked, %d outstanding",
				ErrInvariant, a.allocated.GetCardinality(), a.outstanding.Load())
		}
	}
	return nil
}
