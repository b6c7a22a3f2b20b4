package bcache

// link is a node of the arena-indexed shard lists. Indices below nbuf are
// buffers; index nbuf+s is the sentinel head of shard s.
type link struct {
	next, prev int
}

func (c *Cache) head(s int) int { return c.nbuf + s }

// pushFront inserts b right after the head of shard s.
func (c *Cache) pushFront(s, b int) {
	h := c.head(s)
	n := c.links[h].next
	c.links[b] = link{next: n, prev: h}
	c.links[n].prev = b
	c.links[h].next = b
}

func (c *Cache) unlink(b int) {
	l := c.links[b]
	c.links[l.prev].next = l.next
	c.links[l.next].prev = l.prev
}

// moveFront relinks b at the head of shard s. The caller holds the locks of
// both b's current shard and s.
func (c *Cache) moveFront(s, b int) {
	c.unlink(b)
	c.pushFront(s, b)
}

// lookup returns the buffer caching (dev, blockno) in shard s, or -1.
func (c *Cache) lookup(s int, dev, blockno uint32) int {
	h := c.head(s)
	for b := c.links[h].next; b != h; b = c.links[b].next {
		buf := &c.bufs[b]
		if buf.tagged && buf.dev == dev && buf.blockno == blockno {
			return b
		}
	}
	return -1
}

// victim returns the least recently released idle buffer of shard s, or -1.
func (c *Cache) victim(s int) int {
	h := c.head(s)
	for b := c.links[h].prev; b != h; b = c.links[b].prev {
		if c.bufs[b].refcnt == 0 {
			return b
		}
	}
	return -1
}
