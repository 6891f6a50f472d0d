// Package objectstore defines the object storage collaborator consumed by
// the dataset resolver and the lock coordinator.
//
// Implementations use SDK default credential chains and are safe for
// concurrent use.
package objectstore

import (
	"context"
	"time"
)

// Object summarizes one stored object.
type Object struct {
	// Key is the full object key (path) in the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ETag is the entity tag reported by the store, without quotes.
	ETag string

	// LastModified is when the object was last modified.
	LastModified time.Time
}

// Store abstracts the object storage operations the core depends on.
type Store interface {
	// List returns every object whose key starts with prefix, paginating
	// internally. An empty prefix lists the whole bucket.
	List(ctx context.Context, prefix string) ([]Object, error)

	// Get reads an object's full body.
	// Returns an error satisfying IsNotFound if the object does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes an object, replacing any existing object at key. The
	// replacement is atomic: readers observe either the old or new body.
	Put(ctx context.Context, key string, data []byte) error

	// Download writes an object's body to localPath.
	Download(ctx context.Context, key, localPath string) error

	// Upload stores the file at localPath under key.
	Upload(ctx context.Context, key, localPath string) error

	// IsEmpty reports whether the object at key is missing or zero bytes.
	IsEmpty(ctx context.Context, key string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
