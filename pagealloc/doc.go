// Package pagealloc implements the physical page allocator.
//
// Every CPU owns a free list under its own spin lock, so cores allocating and
// freeing concurrently do not contend. A page freed on a CPU goes to that
// CPU's list. A CPU whose list is empty steals one page from the other CPUs,
// visiting them in ascending order.
//
// Free pages are linked through their first eight bytes (the physical address
// of the next free page, little endian, 0 terminating the list). Pages are
// filled with param.FreeJunk when freed and param.AllocJunk when allocated,
// so use-after-free and uninitialised reads show up as garbage.
//
// Freeing a misaligned address, or one outside the allocation area, halts.
// In checked mode the allocator also tracks outstanding pages in a roaring
// bitmap and halts on double frees.
package pagealloc
