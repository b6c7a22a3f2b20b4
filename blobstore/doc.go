// Package blobstore provides object storage for block devices.
//
// A blob-backed disk keeps one object per block. Store is the small interface
// the disk needs:
//
//	type Store interface {
//	    Get(ctx, name) ([]byte, error)
//	    Put(ctx, name, data) error
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and ephemeral machines
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3
package blobstore
