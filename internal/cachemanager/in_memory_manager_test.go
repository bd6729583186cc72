package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type registerKey string

func TestNewInMemoryCacheManager(t *testing.T) {
	manager := NewInMemoryCacheManager[registerKey, bool]("register-exists", DefaultExpiration, DefaultCleanupInterval)
	require.NotNil(t, manager)
	require.Equal(t, 0, manager.Len())
}

func TestInMemoryCacheManager_GetExistingValue(t *testing.T) {
	manager := NewInMemoryCacheManager[registerKey, bool]("register-exists", DefaultExpiration, DefaultCleanupInterval)
	manager.Set(context.Background(), "r1", true, time.Minute)

	value, found := manager.Get(context.Background(), "r1")
	require.True(t, found)
	require.True(t, value)
}

func TestInMemoryCacheManager_GetWithNoExistingValue(t *testing.T) {
	manager := NewInMemoryCacheManager[registerKey, bool]("register-exists", DefaultExpiration, DefaultCleanupInterval)

	value, found := manager.Get(context.Background(), "missing")
	require.False(t, found)
	require.False(t, value)
}

func TestInMemoryCacheManager_GetWithExpiredValue(t *testing.T) {
	manager := NewInMemoryCacheManager[registerKey, bool]("register-exists", DefaultExpiration, 0)
	manager.Set(context.Background(), "r1", true, time.Millisecond)

	require.Eventually(t, func() bool {
		_, found := manager.Get(context.Background(), "r1")
		return !found
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryCacheManager_GetWithRefresh(t *testing.T) {
	manager := NewInMemoryCacheManager[registerKey, string]("names", DefaultExpiration, DefaultCleanupInterval)

	_, found := manager.GetWithRefresh(context.Background(), "r1", time.Minute)
	require.False(t, found)

	manager.Set(context.Background(), "r1", "ledger", time.Minute)
	value, found := manager.GetWithRefresh(context.Background(), "r1", time.Hour)
	require.True(t, found)
	require.Equal(t, "ledger", value)
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	ctx := context.Background()
	manager := NewInMemoryCacheManager[registerKey, bool]("register-exists", DefaultExpiration, DefaultCleanupInterval)
	manager.Set(ctx, "r1", true, time.Minute)
	manager.Set(ctx, "r2", true, time.Minute)
	manager.Set(ctx, "r3", true, time.Minute)

	require.NoError(t, manager.Delete(ctx))
	require.Equal(t, 3, manager.Len())

	require.NoError(t, manager.Delete(ctx, "r1"))
	_, found := manager.Get(ctx, "r1")
	require.False(t, found)

	require.NoError(t, manager.Flush(ctx))
	require.Equal(t, 0, manager.Len())
}

func TestInMemoryCacheManager_LookupObserver(t *testing.T) {
	var hits, misses int
	manager := NewInMemoryCacheManager[registerKey, bool]("register-exists", DefaultExpiration, DefaultCleanupInterval,
		WithLookupObserver(func(useCase string, hit bool) {
			require.Equal(t, "register-exists", useCase)
			if hit {
				hits++
			} else {
				misses++
			}
		}))

	ctx := context.Background()
	manager.Get(ctx, "r1")
	manager.Set(ctx, "r1", true, time.Minute)
	manager.Get(ctx, "r1")
	manager.Get(ctx, "r1")

	require.Equal(t, 2, hits)
	require.Equal(t, 1, misses)
}
