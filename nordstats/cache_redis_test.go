package nordstats

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisSharedCache_RequiresAddr(t *testing.T) {
	_, err := NewRedisSharedCache(context.Background(), &RedisCacheConfig{})
	assert.Error(t, err)
	_, err = NewRedisSharedCache(context.Background(), nil)
	assert.Error(t, err)
}

func TestRedisSharedCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	cache, err := NewRedisSharedCache(ctx, &RedisCacheConfig{Addr: addr, Prefix: "nordstats-test-" + uuid.NewString()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cache.Clear(ctx)
		_ = cache.Close()
	})

	_, ok, err := cache.Get(ctx, CacheClassStats, playerA)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, CacheClassStats, playerA, []byte(`{"blocksPlaced":1}`), time.Minute))
	require.NoError(t, cache.Set(ctx, CacheClassStats, playerB, []byte(`{}`), time.Minute))
	value, ok, err := cache.Get(ctx, CacheClassStats, playerA)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"blocksPlaced":1}`, string(value))

	require.NoError(t, cache.Delete(ctx, CacheClassStats, playerA))
	_, ok, err = cache.Get(ctx, CacheClassStats, playerA)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Clear(ctx))
	_, ok, err = cache.Get(ctx, CacheClassStats, playerB)
	require.NoError(t, err)
	assert.False(t, ok)
}
