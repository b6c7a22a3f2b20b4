// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("machine-a/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
// Puts go through the SDK upload manager with CRC32C checksums. Blocks are
// small, so every upload is a single PutObject.
package s3
