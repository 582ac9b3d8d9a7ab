package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Ping(context.Background()).Err())
	return client, mr
}

func TestStore(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	store := New(client, "test", 0)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "anomaly/1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, "anomaly/1", []byte{0x00, 0x01, 0xff}))
	assert.True(t, mr.Exists("test:anomaly/1"))

	blob, ok, err := store.Get(ctx, "anomaly/1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x00, 0x01, 0xff}, blob)
}

func TestStoreTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	store := New(client, "", time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "anomaly/1", []byte("blob")))
	assert.Equal(t, time.Hour, mr.TTL(DefaultPrefix+":anomaly/1"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := store.Get(ctx, "anomaly/1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreUnavailable(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := New(client, "test", 0)
	mr.Close()

	_, _, err := store.Get(context.Background(), "anomaly/1")
	assert.Error(t, err)
	assert.Error(t, store.Put(context.Background(), "anomaly/1", []byte("blob")))
}
