// Package session holds the key-value session store and the per-device refresh session
// mapping built on it.
package session

import (
	"context"
	"time"
)

// Store is a typed key-value store with per-key TTL. Implementations serialize values at
// the boundary and are safe for concurrent use.
type Store[T any] interface {
	// Get returns the value at key; ok is false when the key is absent or expired.
	Get(ctx context.Context, key string) (value T, ok bool, err error)
	// Set overwrites the value at key.
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// MGet returns the values present among keys, keyed by key. Misses are omitted.
	MGet(ctx context.Context, keys ...string) (map[string]T, error)
}
