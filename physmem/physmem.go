// Package physmem simulates the machine's physical RAM.
//
// RAM spans [Base, Top). The kernel image occupies [Base, End); everything
// from End up to Top belongs to the page allocator. Addresses are plain
// physical addresses (KERNBASE-relative offsets into an anonymous mapping),
// never Go pointers, so pages can be linked, handed out and validated exactly
// like on hardware.
package physmem

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/kcore/internal/mmap"
	"github.com/hupe1980/kcore/param"
)

// ErrInvalidLayout is returned for a memory layout that cannot be mapped.
var ErrInvalidLayout = errors.New("physmem: invalid layout")

// Config describes the physical memory layout.
type Config struct {
	// Base is the first physical address of RAM. Defaults to param.KERNBASE.
	Base uintptr
	// KernelSize is the size of the kernel image at Base. End = Base + KernelSize.
	// Defaults to param.KERNSIZE.
	KernelSize uintptr
	// Size is the amount of RAM in bytes. Top = Base + Size.
	// Defaults to param.PHYSTOP - param.KERNBASE.
	Size uintptr
}

// DefaultConfig returns the layout of the reference machine.
func DefaultConfig() Config {
	return Config{
		Base:       param.KERNBASE,
		KernelSize: param.KERNSIZE,
		Size:       param.PHYSTOP - param.KERNBASE,
	}
}

// Memory is the RAM of one machine.
type Memory struct {
	mapping *mmap.Mapping
	ram     []byte
	base    uintptr
	end     uintptr
	top     uintptr
}

// New maps RAM for cfg. Zero fields take their defaults.
func New(cfg Config) (*Memory, error) {
	def := DefaultConfig()
	if cfg.Base == 0 {
		cfg.Base = def.Base
	}
	if cfg.KernelSize == 0 {
		cfg.KernelSize = def.KernelSize
	}
	if cfg.Size == 0 {
		cfg.Size = def.Size
	}

	if cfg.Base%param.PGSIZE != 0 {
		return nil, fmt.Errorf("%w: base %#x not page aligned", ErrInvalidLayout, cfg.Base)
	}
	if cfg.Size%param.PGSIZE != 0 {
		return nil, fmt.Errorf("%w: size %#x not a page multiple", ErrInvalidLayout, cfg.Size)
	}
	if cfg.KernelSize >= cfg.Size {
		return nil, fmt.Errorf("%w: kernel image (%d bytes) does not fit in %d bytes of RAM",
			ErrInvalidLayout, cfg.KernelSize, cfg.Size)
	}

	m, err := mmap.MapAnon(int(cfg.Size))
	if err != nil {
		return nil, fmt.Errorf("physmem: map %d bytes: %w", cfg.Size, err)
	}
	_ = m.Advise(mmap.AccessRandom)

	return &Memory{
		mapping: m,
		ram:     m.Bytes(),
		base:    cfg.Base,
		end:     cfg.Base + cfg.KernelSize,
		top:     cfg.Base + cfg.Size,
	}, nil
}

// Base returns the first physical address of RAM.
func (m *Memory) Base() uintptr { return m.base }

// End returns the first address past the kernel image.
func (m *Memory) End() uintptr { return m.end }

// Top returns the address one past the end of RAM.
func (m *Memory) Top() uintptr { return m.top }

// Contains reports whether [pa, pa+n) lies inside RAM.
func (m *Memory) Contains(pa, n uintptr) bool {
	return pa >= m.base && pa <= m.top && n <= m.top-pa
}

// Slice returns the n bytes of RAM starting at pa. It panics if the range is
// outside RAM, like a load from a non-existent address would fault.
func (m *Memory) Slice(pa, n uintptr) []byte {
	if !m.Contains(pa, n) {
		panic(fmt.Sprintf("physmem: access [%#x, %#x) outside RAM [%#x, %#x)", pa, pa+n, m.base, m.top))
	}
	off := pa - m.base
	return m.ram[off : off+n : off+n]
}

// Page returns the page at pa, which must be page aligned.
func (m *Memory) Page(pa uintptr) []byte {
	if pa%param.PGSIZE != 0 {
		panic(fmt.Sprintf("physmem: page address %#x not aligned", pa))
	}
	return m.Slice(pa, param.PGSIZE)
}

// Memset fills n bytes at pa with b.
func (m *Memory) Memset(pa uintptr, b byte, n uintptr) {
	s := m.Slice(pa, n)
	for i := range s {
		s[i] = b
	}
}

// Load64 reads the little-endian word at pa.
func (m *Memory) Load64(pa uintptr) uint64 {
	return binary.LittleEndian.Uint64(m.Slice(pa, 8))
}

// Store64 writes v as a little-endian word at pa.
func (m *Memory) Store64(pa uintptr, v uint64) {
	binary.LittleEndian.PutUint64(m.Slice(pa, 8), v)
}

// Close unmaps RAM. Any later access panics.
func (m *Memory) Close() error {
	m.ram = nil
	return m.mapping.Close()
}
