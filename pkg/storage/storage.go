// Package storage persists generated documents such as invoice PDFs.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists at the path.
var ErrNotFound = errors.New("storage: object not found")

// Store writes and reads opaque blobs addressed by name.
type Store interface {
	// Put stores data under name and returns the path to persist on the owning row.
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
}
