package bcache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hupe1980/kcore/disk"
	"github.com/hupe1980/kcore/internal/cpu"
	"github.com/hupe1980/kcore/internal/fatal"
	"github.com/hupe1980/kcore/internal/sleeplock"
	"github.com/hupe1980/kcore/internal/spinlock"
	"github.com/hupe1980/kcore/param"
)

// Buf is one slot of the pool.
//
// dev, blockno, tagged, refcnt and the list links are guarded by the lock of
// the shard the buffer is on. valid and data are guarded by lock.
type Buf struct {
	dev     uint32
	blockno uint32
	tagged  bool // holds some block's identity
	valid   bool // data holds the block's contents
	refcnt  int
	lock    sleeplock.Lock
	data    [param.BSIZE]byte
}

type shard struct {
	lk spinlock.Spinlock
}

// Cache is the buffer cache.
type Cache struct {
	driver  disk.Driver
	logger  *slog.Logger
	metrics Metrics

	nbuf    int
	nbucket int
	bufs    []Buf
	links   []link // nbuf buffers followed by nbucket heads
	shards  []shard

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New builds the pool. Every buffer starts idle and untagged on shard 0.
func New(driver disk.Driver, optFns ...Option) *Cache {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	logger := fatal.OrDiscard(o.logger)

	c := &Cache{
		driver:  driver,
		logger:  logger,
		metrics: o.metrics,
		nbuf:    o.nbuf,
		nbucket: o.nbucket,
		bufs:    make([]Buf, o.nbuf),
		links:   make([]link, o.nbuf+o.nbucket),
		shards:  make([]shard, o.nbucket),
	}

	for s := range c.shards {
		c.shards[s].lk.Init("bcache.bucket", logger)
		h := c.head(s)
		c.links[h] = link{next: h, prev: h}
	}
	for b := range c.bufs {
		c.bufs[b].lock.Init("buffer", logger)
		c.pushFront(0, b)
	}
	return c
}

// NBuf returns the pool size.
func (c *Cache) NBuf() int { return c.nbuf }

// NBucket returns the number of shards.
func (c *Cache) NBucket() int { return c.nbucket }

func (c *Cache) shardOf(blockno uint32) int {
	return int(blockno % uint32(c.nbucket))
}

// retag gives idle buffer b, found on shard from, the identity (dev, blockno)
// and moves it to the head of shard to, counting the Get as a miss. The
// caller holds both shard locks.
func (c *Cache) retag(b, from, to int, dev, blockno uint32) {
	buf := &c.bufs[b]
	if buf.tagged {
		c.logger.Debug("evict",
			slog.Int("buf", b),
			slog.String("old", fmt.Sprintf("%d/%d", buf.dev, buf.blockno)),
			slog.String("new", fmt.Sprintf("%d/%d", dev, blockno)),
			slog.Int("from", from),
			slog.Int("to", to))
		c.evictions.Add(1)
		c.metrics.RecordEviction(from, to)
	}

	c.countGet(false)

	buf.dev = dev
	buf.blockno = blockno
	buf.tagged = true
	buf.valid = false
	buf.refcnt = 1
	c.moveFront(to, b)
}

// countGet records the outcome of a Get once it is known. A Get that finds
// the block only after dropping and retaking its shard lock is a hit.
func (c *Cache) countGet(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.metrics.RecordBufferGet(hit)
}

// lockBuf takes the content lock of a referenced buffer.
func (c *Cache) lockBuf(cp *cpu.CPU, b int) *Handle {
	t := c.bufs[b].lock.Acquire(cp)
	return &Handle{cache: c, idx: b, ticket: t}
}

// Get returns the buffer for (dev, blockno) with its content lock held,
// recycling an idle buffer if the block is not cached. The data is not read
// from disk; use Read for that. Get halts if every buffer is referenced.
func (c *Cache) Get(cp *cpu.CPU, dev, blockno uint32) *Handle {
	t := c.shardOf(blockno)
	tlk := &c.shards[t].lk

	tlk.Acquire(cp)

	if b := c.lookup(t, dev, blockno); b >= 0 {
		c.bufs[b].refcnt++
		tlk.Release(cp)
		c.countGet(true)
		return c.lockBuf(cp, b)
	}

	// A buffer may go idle on a shard after it was scanned, so scan twice
	// before giving up.
	for range 2 {
		if h := c.replace(cp, t, dev, blockno); h != nil {
			return h
		}
	}

	tlk.Release(cp)
	fatal.Halt(c.logger, "bget", "no buffers")
	return nil
}

// replace finds an idle buffer for (dev, blockno), whose shard t is locked
// on entry. On success every shard lock is released and the buffer is
// returned locked. Otherwise it returns nil with only t still locked.
func (c *Cache) replace(cp *cpu.CPU, t int, dev, blockno uint32) *Handle {
	tlk := &c.shards[t].lk

	// The target shard's own idle buffers first.
	if b := c.victim(t); b >= 0 {
		c.retag(b, t, t, dev, blockno)
		tlk.Release(cp)
		return c.lockBuf(cp, b)
	}

	// Higher shards can be locked while t is held.
	for i := t + 1; i < c.nbucket; i++ {
		ilk := &c.shards[i].lk
		ilk.Acquire(cp)
		if b := c.victim(i); b >= 0 {
			c.retag(b, i, t, dev, blockno)
			ilk.Release(cp)
			tlk.Release(cp)
			return c.lockBuf(cp, b)
		}
		ilk.Release(cp)
	}

	// Lower shards must be locked before t. While t is dropped another core
	// may cache the block or idle a buffer on t, so look again each time.
	for i := 0; i < t; i++ {
		tlk.Release(cp)
		ilk := &c.shards[i].lk
		ilk.Acquire(cp)
		tlk.Acquire(cp)

		if b := c.lookup(t, dev, blockno); b >= 0 {
			c.bufs[b].refcnt++
			tlk.Release(cp)
			ilk.Release(cp)
			c.countGet(true)
			return c.lockBuf(cp, b)
		}

		b, from := c.victim(t), t
		if b < 0 {
			b, from = c.victim(i), i
		}
		if b >= 0 {
			c.retag(b, from, t, dev, blockno)
			tlk.Release(cp)
			ilk.Release(cp)
			return c.lockBuf(cp, b)
		}
		ilk.Release(cp)
	}
	return nil
}

// Read returns the locked buffer for (dev, blockno) holding the block's
// contents, reading it from disk if needed. On a disk error the buffer is
// released, stays invalid and the error is returned.
func (c *Cache) Read(ctx context.Context, cp *cpu.CPU, dev, blockno uint32) (*Handle, error) {
	h := c.Get(cp, dev, blockno)
	buf := h.buf()
	if buf.valid {
		return h, nil
	}

	if err := c.transfer(ctx, buf, false); err != nil {
		c.Release(cp, h)
		return nil, fmt.Errorf("bcache: read block %d/%d: %w", dev, blockno, err)
	}
	buf.valid = true
	return h, nil
}

// Write writes the buffer's contents to disk. The caller must hold h.
func (c *Cache) Write(ctx context.Context, h *Handle) error {
	buf := h.buf()
	if !buf.lock.Holding(h.ticket) {
		fatal.Halt(c.logger, "bwrite", "buffer %d not locked by caller", h.idx)
	}

	if err := c.transfer(ctx, buf, true); err != nil {
		return fmt.Errorf("bcache: write block %d/%d: %w", buf.dev, buf.blockno, err)
	}
	return nil
}

func (c *Cache) transfer(ctx context.Context, buf *Buf, write bool) error {
	start := time.Now()
	err := c.driver.Transfer(ctx, &disk.Request{
		Dev:     buf.dev,
		BlockNo: buf.blockno,
		Data:    buf.data[:],
	}, write)
	c.metrics.RecordDiskIO(write, time.Since(start), err)
	return err
}

// Release unlocks h and drops its reference. A buffer whose last reference
// goes away moves to the head of its shard. h must not be used afterwards.
func (c *Cache) Release(cp *cpu.CPU, h *Handle) {
	buf := h.buf()
	if !buf.lock.Holding(h.ticket) {
		fatal.Halt(c.logger, "brelse", "buffer %d not locked by caller", h.idx)
	}
	buf.lock.Release(cp, h.ticket)

	s := c.shardOf(buf.blockno)
	lk := &c.shards[s].lk
	lk.Acquire(cp)
	buf.refcnt--
	if buf.refcnt == 0 {
		c.moveFront(s, h.idx)
	}
	lk.Release(cp)
}

// Pin adds a reference so the buffer keeps its identity after Release.
// The caller need not hold the content lock.
func (c *Cache) Pin(cp *cpu.CPU, h *Handle) {
	buf := h.buf()
	lk := &c.shards[c.shardOf(buf.blockno)].lk
	lk.Acquire(cp)
	buf.refcnt++
	lk.Release(cp)
}

// Unpin drops a reference taken by Pin. Dropping below zero halts.
func (c *Cache) Unpin(cp *cpu.CPU, h *Handle) {
	buf := h.buf()
	lk := &c.shards[c.shardOf(buf.blockno)].lk
	lk.Acquire(cp)
	if buf.refcnt <= 0 {
		lk.Release(cp)
		fatal.Halt(c.logger, "bunpin", "buffer %d (%d/%d) has no references", h.idx, buf.dev, buf.blockno)
	}
	buf.refcnt--
	lk.Release(cp)
}
