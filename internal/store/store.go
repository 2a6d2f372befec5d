package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KV.Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// KV is a process-local durable key/value store. Each key holds a single
// opaque value that is replaced wholesale on write.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases the underlying connection.
	Close() error
}
