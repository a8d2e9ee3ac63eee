package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Store when a key does not exist.
var ErrNotFound = errors.New("cache entry not found")

// Store persists opaque cache entries by key.
//
// Implementations must return an error satisfying errors.Is(err, ErrNotFound)
// for missing keys, and Put must be atomic: a concurrent Get sees either the
// previous entry or the complete new one.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}
