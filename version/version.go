// Package version keeps a monotonically increasing counter per cache key.
//
// The cache front bumps a key's version on every Put and stamps it into the
// stored snapshot. A read whose snapshot carries an older version than the
// store knows about is stale (another writer, or another node, got there
// first) and is dropped instead of served.
package version

import (
	"context"
	"time"
)

// Store abstracts where versions live.
// Use Local for a single process, or Redis to share versions across nodes.
type Store interface {
	// Current returns the version of key; missing => 0.
	Current(ctx context.Context, key string) (uint64, error)
	// CurrentMany returns versions for many keys; missing => 0.
	CurrentMany(ctx context.Context, keys []string) (map[string]uint64, error)
	// Bump atomically increments the version of key and returns the new value.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup forgets versions untouched for longer than retention, where
	// the store keeps its own bookkeeping.
	Cleanup(retention time.Duration)
	Close(ctx context.Context) error
}
