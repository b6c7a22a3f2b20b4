// Package bcache implements the disk block cache.
//
// A fixed pool of buffers is striped over shards by blockno % nbucket. Each
// shard has its own spin lock and a circular list ordered by recency: head
// side most recently released, tail side least. Lookups and releases touch
// only the block's own shard, so cores working on different blocks rarely
// contend.
//
// A miss recycles an idle buffer (refcnt == 0), searching the target shard
// first and then the others. Shard locks are only ever taken in ascending
// index order, which rules out lock-order deadlocks between concurrent
// evictions. Buffers that are referenced are never re-tagged.
//
// Callers get a *Handle holding the buffer's sleep lock:
//
//	h, err := cache.Read(ctx, c, dev, blockno)
//	if err != nil {
//	    return err
//	}
//	h.Data()[0] = 1
//	err = cache.Write(ctx, h)
//	cache.Release(c, h)
//
// Running out of idle buffers, and breaking the locking contract, halt the
// machine with a *fatal.Error panic.
package bcache
