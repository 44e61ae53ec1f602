// Package filestore provides raw-data blob storage behind a small Storage
// interface. Data rows record their blob as a file:// or s3:// location;
// both backends resolve those locations as well as storage-relative paths,
// and removals of absent objects are no-ops so cleanup can always be
// retried.
package filestore

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrInvalidConfig indicates the storage configuration is invalid.
	ErrInvalidConfig = errors.New("invalid filestore configuration")

	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("file not found")
)

// Storage stores and retrieves raw data blobs.
type Storage interface {
	// Store writes data at path, overwriting any existing object, and
	// returns the full location the object is addressable by.
	Store(ctx context.Context, path string, data io.Reader) (string, error)

	// Open returns a reader over the object at path. The caller closes
	// it. Returns ErrNotFound when the object does not exist.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Remove deletes the object at path. Removing an absent object is a
	// no-op.
	Remove(ctx context.Context, path string) error

	// RemoveAll deletes every object under path. An empty path removes
	// the entire storage root. Absent trees are ignored.
	RemoveAll(ctx context.Context, path string) error
}
