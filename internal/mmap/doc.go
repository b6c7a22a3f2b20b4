// Package mmap provides anonymous memory mappings used as simulated RAM.
//
// # Overview
//
// MapAnon reserves a read-write, private, anonymous region outside the Go
// heap. The garbage collector never scans or moves it, so page-sized chunks of
// it can be addressed by offset and reused indefinitely, the way physical
// memory is.
//
// # Usage
//
//	m, err := mmap.MapAnon(128 << 20)
//	if err != nil { ... }
//	defer m.Close()
//
//	ram := m.Bytes()
//	_ = m.Advise(mmap.AccessRandom)
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE, madvise(2) for hints
//   - Windows: VirtualAlloc with demand paging (advice is a no-op)
//   - Other: a heap-allocated slice
//
// # Thread Safety
//
// Close is idempotent and safe to call concurrently. Callers must ensure no
// goroutine touches Bytes() after Close returns.
package mmap
