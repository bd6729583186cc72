// Package cachemanager provides typed caches over patrickmn/go-cache and a
// read-through wrapper that loads misses from the store.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a typed key/value cache with per-entry ttl.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	// GetWithRefresh returns the value and, on a hit, restarts its ttl.
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}

// LookupObserver is notified of every Get with whether it hit.
type LookupObserver func(useCase string, hit bool)
