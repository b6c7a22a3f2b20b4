// Package kcore provides the resource-management core of a small multicore
// kernel: a sharded, lock-striped disk block cache and a per-core physical
// page allocator with cross-core stealing.
//
// # Quick Start
//
// Boot a machine and use it from one of its cores:
//
//	k, _ := kcore.Boot(ctx, kcore.DefaultConfig())
//	defer k.Close()
//
//	c := k.CPU(0)
//	h, _ := k.Bufs.Read(ctx, c, 1, 42) // locked, valid buffer for block 42 of dev 1
//	h.Data()[0] = 7
//	_ = k.Bufs.Write(ctx, h)
//	k.Bufs.Release(c, h)
//
//	pa, _ := k.Pages.Alloc(c) // one 4 KiB page, filled with param.AllocJunk
//	k.Pages.Free(c, pa)
//
// Default returns a process-wide kernel that is booted once and never torn
// down.
//
// # Cores
//
// A *cpu.CPU stands for one hardware core and must be driven by a single
// goroutine at a time. Run starts one goroutine per core:
//
//	err := k.Run(ctx, func(ctx context.Context, c *cpu.CPU) error {
//	    pa, err := k.Pages.Alloc(c)
//	    if err != nil {
//	        return err
//	    }
//	    k.Pages.Free(c, pa)
//	    return nil
//	})
//
// # Buffer Cache
//
// Blocks hash to NBucket shards, each with its own spin lock and LRU list.
// A miss recycles the least recently used idle buffer, first from the block's
// own shard and then from the others; shard locks are always taken in
// ascending order. Running out of idle buffers halts the kernel with a
// *FatalError.
//
// # Page Allocator
//
// Every core owns a free list. Boot puts all pages on cpu 0; other cores steal
// one page at a time when their own list runs dry. Alloc returns
// ErrOutOfMemory once every list is empty.
//
// # Disks
//
// Config.Disk selects the device behind the cache: an in-memory disk, one
// image file per device, or one object per block in S3 or MinIO, optionally
// compressed with lz4 or zstd. WithDisk installs any other disk.Driver.
//
// # Configuration
//
// Configuration can be read from TOML:
//
//	cfg, err := kcore.LoadConfig(f)
//
// # Observability
//
// Logging goes through log/slog (see Logger). Metrics go to a
// MetricsCollector; BasicMetricsCollector keeps in-memory counters and
// package promcollector exports them to Prometheus.
//
// # Errors
//
// Recoverable conditions are returned as errors (ErrOutOfMemory, disk
// errors, ErrInvalidConfig). Contract violations, such as releasing a
// buffer that is not locked or freeing a bad page, panic with a *FatalError.
package kcore
