// Package param holds the compile-time sizing of the simulated machine.
//
// The values mirror a small RISC-V teaching kernel: eight harts, a thirty slot
// buffer cache striped over thirteen shards, 1 KiB disk blocks and 4 KiB
// physical pages.
package param

const (
	// NCPU is the maximum number of cores.
	NCPU = 8

	// MAXOPBLOCKS is the maximum number of blocks any filesystem operation writes.
	MAXOPBLOCKS = 10

	// NBUF is the size of the disk block cache.
	NBUF = MAXOPBLOCKS * 3

	// NBUCKET is the number of buffer cache shards. A prime keeps
	// sequential block numbers spread across shards.
	NBUCKET = 13

	// BSIZE is the disk block size in bytes.
	BSIZE = 1024

	// PGSIZE is the physical page size in bytes.
	PGSIZE = 4096

	// PGSHIFT is log2(PGSIZE).
	PGSHIFT = 12
)

// Junk patterns written over pages by the allocator.
const (
	// FreeJunk fills a page when it is returned, so dangling references read garbage.
	FreeJunk byte = 0x01

	// AllocJunk fills a page when it is handed out, so uninitialised reads are obvious.
	AllocJunk byte = 0x05
)
