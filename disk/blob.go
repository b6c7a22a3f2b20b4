package disk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/kcore/blobstore"
	"github.com/hupe1980/kcore/internal/blockcodec"
)

// BlobDisk stores one object per block in a blobstore.Store. Objects are
// framed by blockcodec, so corruption in the store is reported instead of
// being read back as data.
type BlobDisk struct {
	store    blobstore.Store
	codec    blockcodec.Codec
	geometry Geometry
	logger   *slog.Logger
}

// NewBlobDisk returns a driver that keeps blocks in store, compressed with codec.
func NewBlobDisk(store blobstore.Store, codec blockcodec.Codec, optFns ...Option) *BlobDisk {
	o := applyOptions(optFns)
	return &BlobDisk{
		store:    store,
		codec:    codec,
		geometry: o.geometry,
		logger:   o.logger,
	}
}

// ObjectName returns the object holding a block.
func ObjectName(dev, blockno uint32) string {
	return fmt.Sprintf("dev%d/%08x", dev, blockno)
}

// Transfer implements Driver.
func (d *BlobDisk) Transfer(ctx context.Context, req *Request, write bool) error {
	if err := d.geometry.check(req); err != nil {
		return err
	}

	name := ObjectName(req.Dev, req.BlockNo)
	if write {
		enc, err := blockcodec.Encode(req.Data, d.codec)
		if err != nil {
			return err
		}
		if err := d.store.Put(ctx, name, enc); err != nil {
			return fmt.Errorf("disk: put %s: %w", name, err)
		}
		return nil
	}

	enc, err := d.store.Get(ctx, name)
	if errors.Is(err, blobstore.ErrNotFound) {
		clear(req.Data)
		return nil
	}
	if err != nil {
		return fmt.Errorf("disk: get %s: %w", name, err)
	}

	if err := blockcodec.Decode(req.Data, enc); err != nil {
		d.logger.Error("corrupt block object", "object", name, "error", err)
		return fmt.Errorf("disk: decode %s: %w", name, err)
	}
	return nil
}

// Blocks returns the names of the stored blocks of dev.
func (d *BlobDisk) Blocks(ctx context.Context, dev uint32) ([]string, error) {
	return d.store.List(ctx, fmt.Sprintf("dev%d/", dev))
}
