package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Download when no object is stored under the key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage archives media files of analyzed content.
type ObjectStorage interface {
	// Upload stores reader under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens the object at key. The caller closes the reader.
	// A missing key yields ErrObjectNotFound.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object.
	GetURL(key string) string

	// Delete removes an object.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, key string) (bool, error)
}
