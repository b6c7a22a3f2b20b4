package bcache

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kcore/disk"
	"github.com/hupe1980/kcore/internal/cpu"
	"github.com/hupe1980/kcore/param"
	"github.com/hupe1980/kcore/testutil"
)

func newTestCache(t *testing.T, nbuf, nbucket int) (*Cache, *disk.MemDisk, *cpu.Machine) {
	t.Helper()
	d := disk.NewMemDisk()
	c := New(d, WithBuffers(nbuf), WithBuckets(nbucket))
	return c, d, cpu.NewMachine(4, nil)
}

func TestNewDefaults(t *testing.T) {
	c := New(disk.NewMemDisk())
	m := cpu.NewMachine(1, nil)

	assert.Equal(t, param.NBUF, c.NBuf())
	assert.Equal(t, param.NBUCKET, c.NBucket())
	require.NoError(t, c.CheckInvariants(m.CPU(0)))

	st := c.ShardStats(m.CPU(0))
	assert.Equal(t, param.NBUF, st[0].Len, "every buffer starts on shard 0")
	assert.Equal(t, param.NBUF, st[0].Idle)
}

func TestReadHitAndMiss(t *testing.T) {
	c, d, m := newTestCache(t, 4, 3)
	cp := m.CPU(0)
	ctx := t.Context()

	h, err := c.Read(ctx, cp, 1, 10)
	require.NoError(t, err)
	assert.True(t, h.Valid())
	assert.Equal(t, uint32(1), h.Dev())
	assert.Equal(t, uint32(10), h.BlockNo())
	assert.Equal(t, make([]byte, param.BSIZE), h.Data())
	c.Release(cp, h)

	h, err = c.Read(ctx, cp, 1, 10)
	require.NoError(t, err)
	c.Release(cp, h)

	assert.Equal(t, int64(1), d.Reads(), "second read is served from the cache")
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())
	assert.Zero(t, cp.Depth())
}

func TestGetDoesNotRead(t *testing.T) {
	c, d, m := newTestCache(t, 2, 1)
	cp := m.CPU(0)

	h := c.Get(cp, 1, 3)
	assert.False(t, h.Valid())
	c.Release(cp, h)
	assert.Zero(t, d.Reads())
}

func TestWriteRoundTripThroughEviction(t *testing.T) {
	c, d, m := newTestCache(t, 3, 2)
	cp := m.CPU(0)
	ctx := t.Context()

	h, err := c.Read(ctx, cp, 1, 7)
	require.NoError(t, err)
	copy(h.Data(), bytes.Repeat([]byte("xv6"), param.BSIZE/3))
	require.NoError(t, c.Write(ctx, h))
	c.Release(cp, h)
	assert.Equal(t, int64(1), d.Writes())

	// Push block 7 out of the cache.
	for bn := uint32(100); bn < 100+uint32(c.NBuf()); bn++ {
		h, err := c.Read(ctx, cp, 1, bn)
		require.NoError(t, err)
		c.Release(cp, h)
	}
	readsBefore := d.Reads()

	h, err = c.Read(ctx, cp, 1, 7)
	require.NoError(t, err)
	defer c.Release(cp, h)

	assert.Equal(t, readsBefore+1, d.Reads(), "block 7 was evicted")
	assert.Equal(t, bytes.Repeat([]byte("xv6"), param.BSIZE/3), h.Data()[:param.BSIZE/3*3])
}

func TestLeastRecentlyReleasedIsEvicted(t *testing.T) {
	c, _, m := newTestCache(t, 3, 1)
	cp := m.CPU(0)

	var hs []*Handle
	for bn := uint32(1); bn <= 3; bn++ {
		hs = append(hs, c.Get(cp, 1, bn))
	}
	for _, h := range hs {
		c.Release(cp, h) // 1 is now least recent
	}

	victim := hs[0].Index()
	h := c.Get(cp, 1, 4)
	assert.Equal(t, victim, h.Index())
	c.Release(cp, h)

	// 2 is next.
	h = c.Get(cp, 1, 1)
	assert.Equal(t, hs[1].Index(), h.Index())
	c.Release(cp, h)

	require.NoError(t, c.CheckInvariants(cp))
}

func TestEvictFromLowerShard(t *testing.T) {
	c, _, m := newTestCache(t, 2, 3)
	cp := m.CPU(0)

	// Block 2 maps to shard 2; all buffers start on shard 0.
	h := c.Get(cp, 1, 2)
	c.Release(cp, h)

	st := c.ShardStats(cp)
	assert.Equal(t, 1, st[0].Len)
	assert.Equal(t, 1, st[2].Len)

	// Block 1 maps to shard 1 and takes from a higher shard first.
	h = c.Get(cp, 1, 1)
	c.Release(cp, h)

	st = c.ShardStats(cp)
	assert.Equal(t, 1, st[0].Len)
	assert.Equal(t, 1, st[1].Len)
	assert.Zero(t, st[2].Len)

	require.NoError(t, c.CheckInvariants(cp))
	assert.Zero(t, cp.Depth())
}

func TestExhaustionIsFatal(t *testing.T) {
	c, _, m := newTestCache(t, 4, 3)
	cp := m.CPU(0)

	var held []*Handle
	for bn := range uint32(4) {
		held = append(held, c.Get(cp, 1, bn))
	}
	assert.PanicsWithError(t, "panic: bget: no buffers", func() {
		c.Get(cp, 1, 99)
	})
	assert.Zero(t, cp.Depth(), "no shard lock is left held")
	require.NoError(t, c.CheckInvariants(cp))

	// A cached block needs no free buffer: another core just waits for it.
	done := make(chan struct{})
	go func() {
		defer close(done)
		h := c.Get(m.CPU(1), 1, 0)
		c.Release(m.CPU(1), h)
	}()
	require.Eventually(t, func() bool {
		return c.ShardStats(cp)[0].Refs == 3 // blocks 0 and 3, plus the waiter
	}, time.Second, time.Millisecond)

	for _, h := range held {
		c.Release(cp, h)
	}
	<-done

	// Once released, the pool recovers.
	h := c.Get(cp, 1, 99)
	c.Release(cp, h)
}

func TestReleaseWithoutLockIsFatal(t *testing.T) {
	c, _, m := newTestCache(t, 2, 1)
	cp := m.CPU(0)

	h := c.Get(cp, 1, 1)
	c.Release(cp, h)
	assert.False(t, h.Held())

	assert.Panics(t, func() { c.Release(cp, h) })
}

func TestWriteWithoutLockIsFatal(t *testing.T) {
	c, d, m := newTestCache(t, 2, 1)
	cp := m.CPU(0)

	h := c.Get(cp, 1, 1)
	c.Release(cp, h)

	assert.Panics(t, func() { _ = c.Write(t.Context(), h) })
	assert.Zero(t, d.Writes())
}

func TestPinKeepsIdentity(t *testing.T) {
	c, _, m := newTestCache(t, 2, 1)
	cp := m.CPU(0)

	h := c.Get(cp, 1, 1)
	c.Pin(cp, h)
	c.Release(cp, h)

	// Only the unpinned buffer can be recycled.
	for bn := uint32(2); bn < 6; bn++ {
		o := c.Get(cp, 1, bn)
		assert.NotEqual(t, h.Index(), o.Index())
		c.Release(cp, o)
	}

	assert.Equal(t, 1, c.ShardStats(cp)[0].Refs)
	c.Unpin(cp, h)
	assert.Zero(t, c.ShardStats(cp)[0].Refs)

	msg := fmt.Sprintf("panic: bunpin: buffer %d (1/1) has no references", h.Index())
	assert.PanicsWithError(t, msg, func() {
		c.Unpin(cp, h)
	})
	assert.Zero(t, cp.Depth())
	require.NoError(t, c.CheckInvariants(cp))
}

func TestReadErrorLeavesBufferInvalid(t *testing.T) {
	d := disk.NewMemDisk(disk.WithGeometry(disk.Geometry{Devices: 2}))
	c := New(d, WithBuffers(2), WithBuckets(1))
	cp := cpu.NewMachine(1, nil).CPU(0)

	_, err := c.Read(t.Context(), cp, 5, 1)
	require.ErrorIs(t, err, disk.ErrBadDevice)
	assert.Contains(t, err.Error(), "bcache: read block 5/1")

	assert.Zero(t, c.ShardStats(cp)[0].Refs, "the failed read dropped its reference")

	h := c.Get(cp, 5, 1)
	assert.False(t, h.Valid())
	c.Release(cp, h)
	require.NoError(t, c.CheckInvariants(cp))
}

func TestWaitsForHolder(t *testing.T) {
	c, _, m := newTestCache(t, 2, 1)

	h0 := c.Get(m.CPU(0), 1, 7)

	got := make(chan *Handle)
	go func() {
		got <- c.Get(m.CPU(1), 1, 7)
	}()

	select {
	case <-got:
		t.Fatal("second core got a held buffer")
	case <-time.After(20 * time.Millisecond):
	}

	c.Release(m.CPU(0), h0)
	h1 := <-got
	assert.Equal(t, h0.Index(), h1.Index())
	c.Release(m.CPU(1), h1)

	assert.Equal(t, int64(1), c.Stats().Misses)
	assert.Equal(t, int64(1), c.Stats().Hits)
}

func TestConcurrentSameBlock(t *testing.T) {
	c, d, m := newTestCache(t, 4, 3)
	const rounds = 200

	err := m.Each(t.Context(), func(ctx context.Context, cp *cpu.CPU) error {
		for range rounds {
			h, err := c.Read(ctx, cp, 1, 42)
			if err != nil {
				return err
			}
			n := binary.LittleEndian.Uint64(h.Data())
			runtime.Gosched()
			binary.LittleEndian.PutUint64(h.Data(), n+1)
			if err := c.Write(ctx, h); err != nil {
				return err
			}
			c.Release(cp, h)
		}
		return nil
	})
	require.NoError(t, err)

	cp := m.CPU(0)
	require.NoError(t, c.CheckInvariants(cp))

	h, err := c.Read(t.Context(), cp, 1, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(4*rounds), binary.LittleEndian.Uint64(h.Data()), "no lost updates")
	c.Release(cp, h)

	assert.Equal(t, int64(1), d.Reads(), "the block was cached once")
}

func TestNoRetagWhileHeld(t *testing.T) {
	// Four cores each hold at most one buffer; five buffers guarantee
	// progress while forcing constant eviction across shards.
	c, _, m := newTestCache(t, 5, 3)
	const rounds = 300

	var (
		mu      sync.Mutex
		written = make(map[uint32]bool)
		seed    atomic.Uint32
	)

	err := m.Each(t.Context(), func(ctx context.Context, cp *cpu.CPU) error {
		off := seed.Add(5)
		for r := range rounds {
			bn := (uint32(r)*7 + off) % 23
			h, err := c.Read(ctx, cp, 1, bn)
			if err != nil {
				return err
			}
			binary.LittleEndian.PutUint32(h.Data()[4:], bn)
			runtime.Gosched()
			if h.Dev() != 1 || h.BlockNo() != bn {
				t.Errorf("buffer re-tagged to %d/%d while held for %d", h.Dev(), h.BlockNo(), bn)
			}
			if got := binary.LittleEndian.Uint32(h.Data()[4:]); got != bn {
				t.Errorf("block %d data overwritten with %d while held", bn, got)
			}
			if err := c.Write(ctx, h); err != nil {
				return err
			}
			c.Release(cp, h)

			mu.Lock()
			written[bn] = true
			mu.Unlock()
		}
		return nil
	})
	require.NoError(t, err)

	cp := m.CPU(0)
	require.NoError(t, c.CheckInvariants(cp))
	for _, s := range c.ShardStats(cp) {
		assert.Zero(t, s.Refs)
	}

	// Every block written survives eviction.
	for bn := range written {
		h, err := c.Read(t.Context(), cp, 1, bn)
		require.NoError(t, err)
		assert.Equal(t, bn, binary.LittleEndian.Uint32(h.Data()[4:]))
		c.Release(cp, h)
	}
	assert.Positive(t, c.Stats().Evictions)
}

func TestMissesMatchDiskReads(t *testing.T) {
	// Cores race for the same few blocks through a pool with one spare
	// buffer, so Gets often find their block only after retaking the shard
	// lock. Every miss reads the disk exactly once; every other Get is a hit.
	c, d, m := newTestCache(t, 5, 3)
	const rounds = 500

	err := m.Each(t.Context(), func(ctx context.Context, cp *cpu.CPU) error {
		rng := testutil.NewRNG(int64(cp.String()[3]))
		for _, bn := range rng.UniformTrace(rounds, 9) {
			h, err := c.Read(ctx, cp, 1, bn)
			if err != nil {
				return err
			}
			runtime.Gosched()
			c.Release(cp, h)
		}
		return nil
	})
	require.NoError(t, err)

	st := c.Stats()
	assert.Equal(t, int64(4*rounds), st.Hits+st.Misses)
	assert.Equal(t, d.Reads(), st.Misses)
	require.NoError(t, c.CheckInvariants(m.CPU(0)))
}
