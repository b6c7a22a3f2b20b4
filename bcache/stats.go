package bcache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/kcore/internal/cpu"
)

// ErrInvariant is returned by CheckInvariants.
var ErrInvariant = errors.New("bcache: invariant violated")

// Stats are cumulative counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Stats returns the cumulative counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// ShardStats is a snapshot of one shard.
type ShardStats struct {
	Len  int // buffers on the list
	Idle int // buffers with refcnt == 0
	Refs int // sum of refcnt
}

// ShardStats snapshots every shard, locking one at a time.
func (c *Cache) ShardStats(cp *cpu.CPU) []ShardStats {
	out := make([]ShardStats, c.nbucket)
	for s := range c.shards {
		lk := &c.shards[s].lk
		lk.Acquire(cp)
		h := c.head(s)
		for b := c.links[h].next; b != h; b = c.links[b].next {
			out[s].Len++
			out[s].Refs += c.bufs[b].refcnt
			if c.bufs[b].refcnt == 0 {
				out[s].Idle++
			}
		}
		lk.Release(cp)
	}
	return out
}

// CheckInvariants locks every shard and verifies the list structure: each
// buffer is on exactly one list, links are consistent, reference counts are
// non-negative, tagged buffers sit on their block's shard and no two buffers
// cache the same block.
func (c *Cache) CheckInvariants(cp *cpu.CPU) error {
	for s := range c.shards {
		c.shards[s].lk.Acquire(cp)
	}
	defer func() {
		for s := c.nbucket - 1; s >= 0; s-- {
			c.shards[s].lk.Release(cp)
		}
	}()

	type ident struct{ dev, blockno uint32 }

	seen := make([]bool, c.nbuf)
	owners := make(map[ident]int)
	count := 0

	for s := range c.shards {
		h := c.head(s)
		prev := h
		for b := c.links[h].next; b != h; b = c.links[b].next {
			if b < 0 || b >= c.nbuf {
				return fmt.Errorf("%w: shard %d links to node %d", ErrInvariant, s, b)
			}
			if seen[b] {
				return fmt.Errorf("%w: buffer %d linked twice", ErrInvariant, b)
			}
			seen[b] = true
			count++

			if c.links[b].prev != prev {
				return fmt.Errorf("%w: buffer %d prev is %d, want %d", ErrInvariant, b, c.links[b].prev, prev)
			}
			prev = b

			buf := &c.bufs[b]
			if buf.refcnt < 0 {
				return fmt.Errorf("%w: buffer %d refcnt %d", ErrInvariant, b, buf.refcnt)
			}
			if !buf.tagged {
				continue
			}
			if want := c.shardOf(buf.blockno); want != s {
				return fmt.Errorf("%w: buffer %d (%d/%d) on shard %d, want %d",
					ErrInvariant, b, buf.dev, buf.blockno, s, want)
			}
			id := ident{buf.dev, buf.blockno}
			if other, dup := owners[id]; dup {
				return fmt.Errorf("%w: buffers %d and %d both cache %d/%d",
					ErrInvariant, other, b, buf.dev, buf.blockno)
			}
			owners[id] = b
		}
		if c.links[h].prev != prev {
			return fmt.Errorf("%w: shard %d tail is %d, want %d", ErrInvariant, s, c.links[h].prev, prev)
		}
	}

	if count != c.nbuf {
		return fmt.Errorf("%w: %d of %d buffers linked", ErrInvariant, count, c.nbuf)
	}
	return nil
}
