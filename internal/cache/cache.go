// Package cache provides the small shared mutable state the service carries
// between requests: a TTL'd byte cache used to absorb redundant aggregation
// calls, and the revoked-token set consulted by session auth. The default
// driver is in-process memory; multi-replica deployments can point both at
// Redis instead.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound signals a cache miss or an expired entry.
var ErrKeyNotFound = errors.New("key not found")

// Cache is the shared-state contract. Implementations tolerate concurrent
// use; racing writers to the same key are acceptable because cached values
// are idempotent for the same key (last writer wins).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// AddRevoked appends a token ID to the revoked set. The set is
	// append-only for the life of the process (or the Redis TTL).
	AddRevoked(ctx context.Context, tokenID string) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	Close()
}
