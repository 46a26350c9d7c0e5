// Package provider defines the byte store that holds the live entries of a
// writebehind.Cache.
//
// The cache stores snapshot frames, not raw values, so a provider must hand
// back exactly the bytes it was given: no added metadata, no re-encoding.
// A frame that fails validation on read is treated as corrupt and deleted.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Implementations must be safe
// for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. cost is a hint for cost-aware stores; ttl <= 0 means
	// no expiry. ok=false means the store dropped the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes key; deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	Close(ctx context.Context) error
}
