// Package cache provides TTL caching for upstream market data with a
// bounded in-memory backend and an optional Redis backend.
//
// Expiry is lazy: an expired entry is detected and removed on read, there
// is no background sweeper. When the memory backend reaches its maximum
// entry count it evicts in insertion order (oldest insert first).
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found or was expired.
	ErrCacheMiss = errors.New("cache miss")
)

// Store is the common contract of the cache backends. All operations are
// atomic with respect to each other: a Get concurrent with a Set for the
// same key observes either the old or the new value, never a partial one.
type Store interface {
	// Get returns the value stored under key, or ErrCacheMiss if the key
	// is absent or its entry has expired. Finding an expired entry removes
	// it as a side effect.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set inserts or replaces the entry under key with a fresh creation
	// timestamp and the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the entry unconditionally.
	Delete(ctx context.Context, key string) error

	// Len returns the current number of entries, including entries that
	// have expired but have not yet been purged by a read.
	Len(ctx context.Context) (int, error)
}
