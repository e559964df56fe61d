package redis_a_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redis_a "github.com/ammerola/stockroom/internal/adapters/redis_adapter"
	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/test/helpers"
)

func newCache(t *testing.T) (*redis_a.Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redis_a.NewCache(client, 5*time.Minute, helpers.TestLogger()), mr
}

func TestCache_SetAndGet(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t)

	t.Run("string", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "test:string", "test value"))

		var got string
		require.NoError(t, cache.Get(ctx, "test:string", &got))
		assert.Equal(t, "test value", got)
	})

	t.Run("inventory_items", func(t *testing.T) {
		items := []*domain.InventoryItem{
			{ID: "apple", Quantity: 2, AssetRef: "url/photoA", Version: 3},
			{ID: "box", Quantity: 1, Version: 1},
		}
		require.NoError(t, cache.Set(ctx, "test:items", items))

		var got []*domain.InventoryItem
		require.NoError(t, cache.Get(ctx, "test:items", &got))
		require.Len(t, got, 2)
		assert.Equal(t, "apple", got[0].ID)
		assert.Equal(t, "url/photoA", got[0].AssetRef)
		assert.Equal(t, int64(3), got[0].Version)
	})

	t.Run("missing_key", func(t *testing.T) {
		var got string
		assert.ErrorIs(t, cache.Get(ctx, "test:missing", &got), redis_a.ErrCacheMiss)
	})
}

func TestCache_SetWithTTL(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t)

	require.NoError(t, cache.SetWithTTL(ctx, "ttl:test", "value", 100*time.Millisecond))

	var result string
	require.NoError(t, cache.Get(ctx, "ttl:test", &result))
	assert.Equal(t, "value", result)

	mr.FastForward(200 * time.Millisecond)

	assert.ErrorIs(t, cache.Get(ctx, "ttl:test", &result), redis_a.ErrCacheMiss)
}

func TestCache_Delete(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t)

	keys := []string{"del:1", "del:2", "del:3"}
	for _, key := range keys {
		require.NoError(t, cache.Set(ctx, key, "value"))
	}

	require.NoError(t, cache.Delete(ctx, keys...))
	require.NoError(t, cache.Delete(ctx))

	for _, key := range keys {
		var result string
		assert.ErrorIs(t, cache.Get(ctx, key, &result), redis_a.ErrCacheMiss)
	}
}

func TestCache_PingFailsWhenServerGone(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t)

	require.NoError(t, cache.Ping(ctx))
	mr.Close()
	assert.Error(t, cache.Ping(ctx))
}

func TestCache_BuildKey(t *testing.T) {
	assert.Equal(t, "inv", redis_a.BuildKey(redis_a.PrefixInventory))
	assert.Equal(t, "inv:items:all", redis_a.BuildKey(redis_a.PrefixInventory, "items", "all"))
	assert.Equal(t, "inv:items:all", redis_a.ListKey)
	assert.Equal(t, "inv:items:generation", redis_a.GenerationKey)
}

func TestCache_Incr(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t)

	for want := int64(1); want <= 3; want++ {
		got, err := cache.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	var n int64
	require.NoError(t, cache.Get(ctx, "counter", &n))
	assert.Equal(t, int64(3), n)

	mr.SetError("LOADING")
	_, err := cache.Incr(ctx, "counter")
	assert.Error(t, err)
}
