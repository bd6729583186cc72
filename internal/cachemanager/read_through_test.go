package cachemanager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCacheManager[K comparable, V any] struct {
	mock.Mock
}

func (m *mockCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	args := m.Called(ctx, key)
	return args.Get(0).(V), args.Bool(1)
}

func (m *mockCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(V), args.Bool(1)
}

func (m *mockCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *mockCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *mockCacheManager[K, V]) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// existsLoader counts calls and answers with result.
func existsLoader(calls *atomic.Int32, result bool, err error) Loader[string, bool] {
	return func(context.Context, string) (bool, error) {
		calls.Add(1)
		return result, err
	}
}

func TestReadThrough_Bypass(t *testing.T) {
	manager := &mockCacheManager[string, bool]{}
	var calls atomic.Int32
	rt := NewReadThrough[string, bool](manager, existsLoader(&calls, true, nil), time.Minute).Bypass(true)

	value, err := rt.Get(context.Background(), "r1")
	require.NoError(t, err)
	require.True(t, value)
	require.Equal(t, int32(1), calls.Load())

	rt.Set(context.Background(), "r1", true)
	require.NoError(t, rt.Invalidate(context.Background(), "r1"))
	manager.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	manager.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	manager.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestReadThrough_NilCacheBypasses(t *testing.T) {
	var calls atomic.Int32
	rt := NewReadThrough[string, bool](nil, existsLoader(&calls, true, nil), time.Minute).Bypass(false)

	_, err := rt.Get(context.Background(), "r1")
	require.NoError(t, err)
	rt.Set(context.Background(), "r1", true)
	require.NoError(t, rt.Invalidate(context.Background(), "r1"))
	require.Equal(t, int32(1), calls.Load())
}

func TestReadThrough_Hit(t *testing.T) {
	manager := &mockCacheManager[string, bool]{}
	manager.On("Get", mock.Anything, "r1").Return(true, true).Once()
	var calls atomic.Int32
	rt := NewReadThrough[string, bool](manager, existsLoader(&calls, false, nil), time.Minute)

	value, err := rt.Get(context.Background(), "r1")
	require.NoError(t, err)
	require.True(t, value)
	require.Zero(t, calls.Load(), "loader should not run on a hit")
	manager.AssertExpectations(t)
}

func TestReadThrough_SlidingHitRefreshes(t *testing.T) {
	manager := &mockCacheManager[string, bool]{}
	manager.On("GetWithRefresh", mock.Anything, "r1", time.Minute).Return(true, true).Once()
	var calls atomic.Int32
	rt := NewReadThrough[string, bool](manager, existsLoader(&calls, false, nil), time.Minute).Sliding()

	value, err := rt.Get(context.Background(), "r1")
	require.NoError(t, err)
	require.True(t, value)
	require.Zero(t, calls.Load())
	manager.AssertExpectations(t)
	manager.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestReadThrough_MissLoadsAndStores(t *testing.T) {
	manager := &mockCacheManager[string, bool]{}
	manager.On("Get", mock.Anything, "r1").Return(false, false).Once()
	manager.On("Set", mock.Anything, "r1", true, time.Minute).Return().Once()
	var calls atomic.Int32
	rt := NewReadThrough[string, bool](manager, existsLoader(&calls, true, nil), time.Minute)

	value, err := rt.Get(context.Background(), "r1")
	require.NoError(t, err)
	require.True(t, value)
	require.Equal(t, int32(1), calls.Load())
	manager.AssertExpectations(t)
}

func TestReadThrough_CacheOnly(t *testing.T) {
	manager := &mockCacheManager[string, bool]{}
	manager.On("Get", mock.Anything, "r1").Return(false, false).Twice()
	var calls atomic.Int32
	rt := NewReadThrough[string, bool](manager, existsLoader(&calls, false, nil), time.Minute).
		CacheOnly(func(exists bool) bool { return exists })

	for range 2 {
		value, err := rt.Get(context.Background(), "r1")
		require.NoError(t, err)
		require.False(t, value)
	}
	require.Equal(t, int32(2), calls.Load(), "negative results should not be cached")
	manager.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThrough_LoaderError(t *testing.T) {
	manager := &mockCacheManager[string, bool]{}
	manager.On("Get", mock.Anything, "r1").Return(false, false).Once()
	loadErr := errors.New("database unavailable")
	rt := NewReadThrough[string, bool](manager, existsLoader(new(atomic.Int32), false, loadErr), time.Minute)

	_, err := rt.Get(context.Background(), "r1")
	require.ErrorIs(t, err, loadErr)
	manager.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThrough_ConcurrentMissesShareOneLoad(t *testing.T) {
	var misses atomic.Int32
	cache := NewInMemoryCacheManager[string, bool]("test", time.Minute, 0,
		WithLookupObserver(func(_ string, hit bool) {
			if !hit {
				misses.Add(1)
			}
		}))
	release := make(chan struct{})
	var calls atomic.Int32
	load := func(context.Context, string) (bool, error) {
		calls.Add(1)
		<-release
		return true, nil
	}
	rt := NewReadThrough[string, bool](cache, load, time.Minute)

	const callers = 8
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := rt.Get(context.Background(), "r1")
			assert.NoError(t, err)
			assert.True(t, value)
		}()
	}
	// every caller has missed and is joining the in-flight load
	require.Eventually(t, func() bool { return misses.Load() == callers }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, 1, cache.Len())
}

func TestReadThrough_CancelledCallerLeavesSharedLoad(t *testing.T) {
	var misses atomic.Int32
	cache := NewInMemoryCacheManager[string, bool]("test", time.Minute, 0,
		WithLookupObserver(func(_ string, hit bool) {
			if !hit {
				misses.Add(1)
			}
		}))
	started := make(chan struct{})
	var startOnce sync.Once
	release := make(chan struct{})
	var calls atomic.Int32
	load := func(ctx context.Context, _ string) (bool, error) {
		calls.Add(1)
		startOnce.Do(func() { close(started) })
		<-release
		return true, ctx.Err()
	}
	rt := NewReadThrough[string, bool](cache, load, time.Minute)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := rt.Get(firstCtx, "r1")
		firstErr <- err
	}()
	<-started

	second := make(chan bool, 1)
	go func() {
		value, err := rt.Get(context.Background(), "r1")
		assert.NoError(t, err)
		second <- value
	}()
	require.Eventually(t, func() bool { return misses.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	close(release)

	select {
	case value := <-second:
		require.True(t, value)
	case <-time.After(time.Second):
		require.Fail(t, "second caller did not get the shared result")
	}
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, 1, cache.Len())
}

func TestReadThrough_Invalidate(t *testing.T) {
	manager := &mockCacheManager[string, bool]{}
	manager.On("Delete", mock.Anything, []string{"r1"}).Return(nil).Once()
	rt := NewReadThrough[string, bool](manager, existsLoader(new(atomic.Int32), true, nil), time.Minute)

	require.NoError(t, rt.Invalidate(context.Background(), "r1"))
	manager.AssertExpectations(t)
}
