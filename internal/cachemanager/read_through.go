package cachemanager

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fetches the authoritative value for key.
type Loader[K ~string, V any] func(ctx context.Context, key K) (V, error)

// ReadThrough serves values from a CacheManager and loads misses through a
// Loader. Concurrent misses for the same key share one load.
type ReadThrough[K ~string, V any] struct {
	cache   CacheManager[K, V]
	load    Loader[K, V]
	ttl     time.Duration
	bypass  bool
	sliding bool
	keep    func(V) bool
	group   singleflight.Group
}

// NewReadThrough wraps load. A nil cache behaves like Bypass.
func NewReadThrough[K ~string, V any](cache CacheManager[K, V], load Loader[K, V], ttl time.Duration) *ReadThrough[K, V] {
	return &ReadThrough[K, V]{cache: cache, load: load, ttl: ttl, bypass: cache == nil}
}

// Bypass sends every Get to the loader and turns Set and Invalidate into no-ops.
func (r *ReadThrough[K, V]) Bypass(bypass bool) *ReadThrough[K, V] {
	r.bypass = bypass || r.cache == nil
	return r
}

// Sliding extends an entry's ttl on every hit.
func (r *ReadThrough[K, V]) Sliding() *ReadThrough[K, V] {
	r.sliding = true
	return r
}

// CacheOnly stores loaded values only when keep returns true. Other values
// are returned but loaded again next time.
func (r *ReadThrough[K, V]) CacheOnly(keep func(V) bool) *ReadThrough[K, V] {
	r.keep = keep
	return r
}

// Get returns the cached value for key or loads it.
func (r *ReadThrough[K, V]) Get(ctx context.Context, key K) (V, error) {
	if r.bypass {
		return r.load(ctx, key)
	}

	var (
		value V
		hit   bool
	)
	if r.sliding {
		value, hit = r.cache.GetWithRefresh(ctx, key, r.ttl)
	} else {
		value, hit = r.cache.Get(ctx, key)
	}
	if hit {
		return value, nil
	}

	// The shared load outlives any one caller; each caller waits on its own ctx.
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(string(key), func() (any, error) {
		v, err := r.load(loadCtx, key)
		if err != nil {
			return v, err
		}
		if r.keep == nil || r.keep(v) {
			r.cache.Set(loadCtx, key, v, r.ttl)
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Set stores value without calling the loader.
func (r *ReadThrough[K, V]) Set(ctx context.Context, key K, value V) {
	if !r.bypass {
		r.cache.Set(ctx, key, value, r.ttl)
	}
}

// Invalidate drops keys so the next Get reloads them.
func (r *ReadThrough[K, V]) Invalidate(ctx context.Context, keys ...K) error {
	if r.bypass {
		return nil
	}
	for _, key := range keys {
		r.group.Forget(string(key))
	}
	return r.cache.Delete(ctx, keys...)
}
