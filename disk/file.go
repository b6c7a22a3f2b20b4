package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/kcore/internal/fs"
	"github.com/hupe1980/kcore/param"
)

// FileDisk stores each device in its own image file, disk<dev>.img, under a
// directory. Images are opened on first use and grow as blocks are written.
type FileDisk struct {
	dir      string
	fs       fs.FileSystem
	geometry Geometry
	logger   *slog.Logger

	mu     sync.Mutex
	images map[uint32]fs.File
	closed bool
}

// NewFileDisk creates dir if needed and returns a driver for the images in it.
func NewFileDisk(dir string, optFns ...Option) (*FileDisk, error) {
	o := applyOptions(optFns)
	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("disk: create %s: %w", dir, err)
	}
	return &FileDisk{
		dir:      dir,
		fs:       o.fs,
		geometry: o.geometry,
		logger:   o.logger,
		images:   make(map[uint32]fs.File),
	}, nil
}

// ImagePath returns the image file of dev.
func (d *FileDisk) ImagePath(dev uint32) string {
	return filepath.Join(d.dir, fmt.Sprintf("disk%d.img", dev))
}

func (d *FileDisk) image(dev uint32) (fs.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, os.ErrClosed
	}
	if f, ok := d.images[dev]; ok {
		return f, nil
	}

	f, err := d.fs.OpenFile(d.ImagePath(dev), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	d.images[dev] = f
	d.logger.Debug("disk image opened", "dev", dev, "path", d.ImagePath(dev))
	return f, nil
}

// Transfer implements Driver. Writes are not synced; call Sync for durability.
func (d *FileDisk) Transfer(ctx context.Context, req *Request, write bool) error {
	if err := d.geometry.check(req); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := d.image(req.Dev)
	if err != nil {
		return fmt.Errorf("disk: open device %d: %w", req.Dev, err)
	}

	off := int64(req.BlockNo) * param.BSIZE
	if write {
		if _, err := f.WriteAt(req.Data, off); err != nil {
			return fmt.Errorf("disk: write %s: %w", req, err)
		}
		return nil
	}

	n, err := f.ReadAt(req.Data, off)
	if errors.Is(err, io.EOF) {
		// Past the end of the image: the rest of the block was never written.
		clear(req.Data[n:])
		return nil
	}
	if err != nil {
		return fmt.Errorf("disk: read %s: %w", req, err)
	}
	return nil
}

// Sync flushes every open image.
func (d *FileDisk) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for _, f := range d.images {
		errs = append(errs, f.Sync())
	}
	return errors.Join(errs...)
}

// Close syncs and closes every open image.
func (d *FileDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for dev, f := range d.images {
		errs = append(errs, f.Sync(), f.Close())
		delete(d.images, dev)
	}
	return errors.Join(errs...)
}
