package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisKV(client)
}

func TestRedisKV_GetSet(t *testing.T) {
	mr, kv := setupTestRedis(t)
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisKV_SetNX(t *testing.T) {
	mr, kv := setupTestRedis(t)
	ctx := context.Background()

	ok, err := kv.SetNX(ctx, "lock", "a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = kv.SetNX(ctx, "lock", "b", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// an abandoned lock expires
	mr.FastForward(31 * time.Second)
	ok, err = kv.SetNX(ctx, "lock", "b", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisKV_CompareAndDelete(t *testing.T) {
	mr, kv := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "lock", "owner", time.Minute))

	ok, err := kv.CompareAndDelete(ctx, "lock", "intruder")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("lock"))

	ok, err = kv.CompareAndDelete(ctx, "lock", "owner")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("lock"))

	ok, err = kv.CompareAndDelete(ctx, "lock", "owner")
	require.NoError(t, err)
	assert.False(t, ok)
}
