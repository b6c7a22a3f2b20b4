// Package disk defines the block device contract used by the buffer cache and
// ships reference drivers.
//
// A Driver moves exactly one BSIZE block per call and returns only when the
// transfer is complete:
//
//	err := d.Transfer(ctx, &disk.Request{Dev: 1, BlockNo: 33, Data: buf}, false)
//
// Drivers:
//
//   - [MemDisk]: sparse in-memory device, never fails
//   - [FileDisk]: one image file per device on an fs.FileSystem
//   - [BlobDisk]: one object per block in a blobstore.Store, compressed and checksummed
//   - [RateLimited]: wraps another driver and charges each transfer to a resource.Controller
//
// Blocks that were never written read back as zeros on every driver.
package disk
