package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports a missing object path.
var ErrNotFound = errors.New("object_not_found")

// Store is the blob storage consumed by the avatar lifecycle. Paths are
// slash-separated keys (`avatars/<user_id>/<token>.<ext>`). Delete is
// idempotent: removing an absent path is not an error.
type Store interface {
	Save(ctx context.Context, path string, r io.Reader) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Delete removes a single object. Deleting a missing path returns nil.
	Delete(ctx context.Context, path string) error
	// List returns the full paths of all objects under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
