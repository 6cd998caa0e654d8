package cache

import (
	"context"
	"time"
)

// Cache is the key value adapter used by the cached model reads.
type Cache interface {
	// Load decodes the value stored under key into dest. It reports false
	// when the key is absent or expired.
	Load(ctx context.Context, key string, dest any) (bool, error)
	// Save stores value under key for ttl. A zero ttl never expires.
	Save(ctx context.Context, key string, value any, ttl time.Duration) error
	Remove(ctx context.Context, keys ...string) error
}
