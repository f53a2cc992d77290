// Package cache provides the key/value store the duplicate gate checks
// fingerprints against: a process-local ttlcache tier in front of a shared
// Redis tier.
package cache

import (
	"context"
	"time"
)

// Cache is the capability the gate needs: read a key, write a key with a TTL.
// A missing or expired key is reported as found == false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Adder is implemented by caches that can insert a key only when it is
// absent, as one atomic step. It reports whether the value was stored.
type Adder interface {
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// Tier names used in logs and metrics.
const (
	TierLocal  = "local"
	TierShared = "shared"
)
