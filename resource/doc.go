// Package resource implements the Controller for machine-wide limits.
//
//	┌──────────────────────────────────────────────────────┐
//	│                      Controller                      │
//	├─────────────────┬──────────────────┬─────────────────┤
//	│  Memory budget  │  Disk transfers  │  IO rate        │
//	│  (fail-fast)    │  (semaphore)     │  (token bucket) │
//	├─────────────────┼──────────────────┼─────────────────┤
//	│  AcquireMemory  │  AcquireTransfer │  AcquireTransfer│
//	│  ReleaseMemory  │  ReleaseTransfer │  TryAcquireIO   │
//	└─────────────────┴──────────────────┴─────────────────┘
//
// # Memory
//
// The page allocator reserves PGSIZE bytes per page handed out and releases
// them on free. Reservations never block; a full budget makes the allocation
// fail the same way an empty free list does:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 20,
//	})
//	if !rc.TryAcquireMemory(param.PGSIZE) {
//	    return 0, ErrOutOfMemory
//	}
//
// # Disk
//
// A rate-limited disk driver takes one transfer slot and len(block) bytes of
// IO budget per request. AcquireTransfer blocks, honouring ctx.
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
