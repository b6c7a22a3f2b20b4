package disk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/kcore/internal/fs"
	"github.com/hupe1980/kcore/param"
)

var (
	// ErrBadDevice is returned for a device number the driver does not serve.
	ErrBadDevice = errors.New("disk: bad device")
	// ErrBadBlock is returned for a block number past the end of the device.
	ErrBadBlock = errors.New("disk: block out of range")
	// ErrBadSize is returned when a request does not carry exactly one block.
	ErrBadSize = errors.New("disk: transfer size is not one block")
)

// Request is one block transfer.
type Request struct {
	Dev     uint32
	BlockNo uint32
	// Data is the source on write and the destination on read.
	Data []byte
}

func (r *Request) String() string {
	return fmt.Sprintf("%d/%d", r.Dev, r.BlockNo)
}

// Driver performs synchronous block transfers.
// Implementations must be safe for concurrent use.
type Driver interface {
	Transfer(ctx context.Context, req *Request, write bool) error
}

// Geometry bounds the requests a driver accepts. Zero fields are unbounded.
type Geometry struct {
	Devices uint32
	Blocks  uint32
}

func (g Geometry) check(req *Request) error {
	if len(req.Data) != param.BSIZE {
		return fmt.Errorf("%w: %d bytes", ErrBadSize, len(req.Data))
	}
	if g.Devices > 0 && req.Dev >= g.Devices {
		return fmt.Errorf("%w: %d", ErrBadDevice, req.Dev)
	}
	if g.Blocks > 0 && req.BlockNo >= g.Blocks {
		return fmt.Errorf("%w: %d >= %d", ErrBadBlock, req.BlockNo, g.Blocks)
	}
	return nil
}

type options struct {
	geometry Geometry
	logger   *slog.Logger
	fs       fs.FileSystem
}

// Option configures a driver.
type Option func(*options)

// WithGeometry limits device and block numbers.
func WithGeometry(g Geometry) Option {
	return func(o *options) { o.geometry = g }
}

// WithLogger sets the driver logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFileSystem sets the file system of a FileDisk.
func WithFileSystem(f fs.FileSystem) Option {
	return func(o *options) { o.fs = f }
}

func applyOptions(optFns []Option) options {
	o := options{
		logger: slog.New(slog.DiscardHandler),
		fs:     fs.Default,
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}
