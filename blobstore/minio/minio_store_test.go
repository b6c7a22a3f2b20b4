package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kcore/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	bucket := "test-kcore"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("superblock")
	require.NoError(t, store.Put(ctx, "dev1/00000001", data))

	got, err := store.Get(ctx, "dev1/00000001")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "dev1/")
	require.NoError(t, err)
	assert.Contains(t, names, "dev1/00000001")

	require.NoError(t, store.Delete(ctx, "dev1/00000001"))
	_, err = store.Get(ctx, "dev1/00000001")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_Key(t *testing.T) {
	s := NewStore(nil, "bucket", "disks/")
	assert.Equal(t, "disks/dev1/00000001", s.key("dev1/00000001"))

	s = NewStore(nil, "bucket", "")
	assert.Equal(t, "dev1/00000001", s.key("dev1/00000001"))
}
