// Package cache provides the best-effort result cache. A cache failure must
// never fail a request: adapters swallow errors, report them through the
// Connected flag, and retry opportunistically on later calls.
package cache

import (
	"context"
	"time"
)

// TTLs for the two cached payload kinds.
const (
	SearchTTL  = 60 * time.Second
	MappingTTL = 3600 * time.Second
)

// Cache stores serialized responses keyed by the canonical request form.
type Cache interface {
	// Get returns the cached payload and whether it was present. Errors are
	// reported as a miss.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a payload with a TTL, best-effort.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Flush removes every entry.
	Flush(ctx context.Context) error
	// Connected reports whether the last backend round-trip succeeded.
	Connected() bool
}
