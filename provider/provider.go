// Package provider defines the byte store abstraction under store/kvstore.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key (no prepended/appended
// metadata, no re-encoding, no mutation). If a store performs internal transforms
// (e.g., compression), they MUST be fully reversed so that the bytes returned by
// Get are identical to the bytes provided to Set.
//
// Important: keys under the kvstore prefix ("mc:" by default) are owned by
// metacache. Foreign writes there fail wire validation and read as absent.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. A non-positive ttl means no expiry where the backend
	// supports it.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Item is one write of a batch.
type Item struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// BatchSetter is implemented by providers that can apply several writes
// atomically. Readers never observe a partially applied batch.
type BatchSetter interface {
	SetMany(ctx context.Context, items []Item) error
}

// BatchGetter is implemented by providers that can read several keys in one
// round trip. Missing keys are absent from the result.
type BatchGetter interface {
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
}
