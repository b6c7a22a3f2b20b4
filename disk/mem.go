package disk

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/kcore/param"
)

type blockKey struct {
	dev, blockno uint32
}

// MemDisk is a sparse in-memory block device.
type MemDisk struct {
	geometry Geometry

	mu     sync.RWMutex
	blocks map[blockKey]*[param.BSIZE]byte

	reads  atomic.Int64
	writes atomic.Int64
}

// NewMemDisk returns an empty in-memory device.
func NewMemDisk(optFns ...Option) *MemDisk {
	o := applyOptions(optFns)
	return &MemDisk{
		geometry: o.geometry,
		blocks:   make(map[blockKey]*[param.BSIZE]byte),
	}
}

// Transfer implements Driver.
func (d *MemDisk) Transfer(ctx context.Context, req *Request, write bool) error {
	if err := d.geometry.check(req); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	k := blockKey{req.Dev, req.BlockNo}
	if write {
		d.mu.Lock()
		b, ok := d.blocks[k]
		if !ok {
			b = new([param.BSIZE]byte)
			d.blocks[k] = b
		}
		copy(b[:], req.Data)
		d.mu.Unlock()
		d.writes.Add(1)
		return nil
	}

	d.mu.RLock()
	if b, ok := d.blocks[k]; ok {
		copy(req.Data, b[:])
	} else {
		clear(req.Data)
	}
	d.mu.RUnlock()
	d.reads.Add(1)
	return nil
}

// Reads returns the number of completed reads.
func (d *MemDisk) Reads() int64 { return d.reads.Load() }

// Writes returns the number of completed writes.
func (d *MemDisk) Writes() int64 { return d.writes.Load() }

// Peek copies a stored block without counting a transfer.
// It reports false if the block was never written.
func (d *MemDisk) Peek(dev, blockno uint32, dst []byte) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.blocks[blockKey{dev, blockno}]
	if ok {
		copy(dst, b[:])
	}
	return ok
}
