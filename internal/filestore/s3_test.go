package filestore_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mnemod/internal/filestore"
)

func TestS3Config_ApplyDefaults(t *testing.T) {
	cfg := filestore.S3Config{Bucket: "blobs", Prefix: "/raw/"}
	cfg.ApplyDefaults()

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "raw", cfg.Prefix)
}

func TestS3Config_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  filestore.S3Config
		wantErr bool
	}{
		{
			name:   "valid",
			config: filestore.S3Config{Bucket: "blobs", Region: "us-east-1"},
		},
		{
			name:    "missing bucket",
			config:  filestore.S3Config{Region: "us-east-1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, filestore.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewS3Storage_InvalidConfig(t *testing.T) {
	_, err := filestore.NewS3Storage(context.Background(), filestore.S3Config{}, nil)
	assert.ErrorIs(t, err, filestore.ErrInvalidConfig)
}

// newIntegrationS3Storage connects to the bucket named by AWS_BUCKET,
// scoped to a unique prefix per test run. Skipped unless the environment
// provides one.
func newIntegrationS3Storage(t *testing.T) *filestore.S3Storage {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping S3 integration test in short mode")
	}
	bucket := os.Getenv("AWS_BUCKET")
	if bucket == "" {
		t.Skip("AWS_BUCKET not set, skipping S3 integration test")
	}

	ctx := context.Background()
	store, err := filestore.NewS3Storage(ctx, filestore.S3Config{
		Bucket:    bucket,
		Region:    os.Getenv("AWS_REGION"),
		Endpoint:  os.Getenv("AWS_ENDPOINT"),
		AccessKey: os.Getenv("AWS_ACCESS_KEY"),
		SecretKey: os.Getenv("AWS_SECRET_KEY"),
		Prefix:    "it_" + uuid.NewString()[:8],
	}, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := store.RemoveAll(ctx, ""); err != nil {
			t.Logf("cleanup failed: %v", err)
		}
	})
	return store
}

func TestS3Storage_Integration(t *testing.T) {
	ctx := context.Background()
	store := newIntegrationS3Storage(t)

	t.Run("store and open", func(t *testing.T) {
		location, err := store.Store(ctx, "docs/report.txt", strings.NewReader("hello s3"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(location, "s3://"), "location %q", location)

		reader, err := store.Open(ctx, "docs/report.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello s3", readAll(t, reader))

		reader, err = store.Open(ctx, location)
		require.NoError(t, err)
		assert.Equal(t, "hello s3", readAll(t, reader))
	})

	t.Run("open missing", func(t *testing.T) {
		_, err := store.Open(ctx, "missing.txt")
		assert.ErrorIs(t, err, filestore.ErrNotFound)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		_, err := store.Store(ctx, "tmp/gone.txt", strings.NewReader("x"))
		require.NoError(t, err)

		require.NoError(t, store.Remove(ctx, "tmp/gone.txt"))
		_, err = store.Open(ctx, "tmp/gone.txt")
		assert.ErrorIs(t, err, filestore.ErrNotFound)

		assert.NoError(t, store.Remove(ctx, "tmp/gone.txt"))
		assert.NoError(t, store.Remove(ctx, "tmp/never-there.txt"))
	})

	t.Run("remove all pages through listing", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			_, err := store.Store(ctx, fmt.Sprintf("bulk/file-%d.txt", i), strings.NewReader("x"))
			require.NoError(t, err)
		}

		require.NoError(t, store.RemoveAll(ctx, "bulk"))

		_, err := store.Open(ctx, "bulk/file-0.txt")
		assert.ErrorIs(t, err, filestore.ErrNotFound)

		assert.NoError(t, store.RemoveAll(ctx, "bulk"))
	})
}
