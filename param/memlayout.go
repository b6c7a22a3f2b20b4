package param

// Physical memory layout.
//
// qemu -machine virt puts RAM at 0x80000000. The kernel image is loaded there
// and everything from the end of the image up to PHYSTOP is handed to the page
// allocator:
//
//	80000000 -- kernel text and data
//	end      -- start of the page allocation area
//	PHYSTOP  -- end of RAM used by the kernel
const (
	// KERNBASE is the first physical address of RAM.
	KERNBASE uintptr = 0x80000000

	// PHYSTOP is the top of RAM used by the kernel (128 MiB).
	PHYSTOP uintptr = KERNBASE + 128*1024*1024

	// KERNSIZE is the default size reserved for the kernel image.
	KERNSIZE uintptr = 2 * 1024 * 1024
)

// PGROUNDUP rounds a up to the next page boundary.
func PGROUNDUP(a uintptr) uintptr { return (a + PGSIZE - 1) &^ (PGSIZE - 1) }

// PGROUNDDOWN rounds a down to a page boundary.
func PGROUNDDOWN(a uintptr) uintptr { return a &^ (PGSIZE - 1) }
