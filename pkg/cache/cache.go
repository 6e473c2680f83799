// Package cache provides the Redis-backed read cache for derived views.
// Cached values are recoverable projections of persistent state: a miss (or
// an unreachable backend) only costs latency, never correctness, so no
// operation here returns an error.
package cache

import (
	"context"
	"time"
)

// DefaultTTL bounds staleness for entries stored without an explicit TTL.
const DefaultTTL = 5 * time.Minute

// Cache is the key/value store consulted before persistence on read paths
// and invalidated on every mutation that could affect a cached result set.
type Cache interface {
	// Get unmarshals the entry into dest and reports whether it was a hit.
	Get(ctx context.Context, key string, dest any) bool
	// Set stores the entry. ttl <= 0 uses DefaultTTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
	// DeletePattern removes every key matching the glob pattern using an
	// incremental scan, never a blocking full key listing.
	DeletePattern(ctx context.Context, pattern string)
	// DeleteExact removes a known set of hot keys in one round trip.
	DeleteExact(ctx context.Context, keys ...string)
}
