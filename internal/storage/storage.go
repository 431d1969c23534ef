// Package storage defines the object store that holds persisted image
// bytes. The object store is the system of record; the in-memory image
// cache is a disposable projection over it.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrObjectNotFound is returned when no object exists under the requested key.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidKey is returned when a key is empty or unusable for the backend.
	ErrInvalidKey = errors.New("invalid object key")
)

// ObjectStore is a read-by-key/write-by-key byte store.
type ObjectStore interface {
	// Get returns the bytes stored under key.
	// Returns ErrObjectNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the object under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
