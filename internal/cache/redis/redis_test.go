package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/repository"
)

// testClient connects to LIBRARY_TEST_REDIS_ADDR or skips.
func testClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("LIBRARY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LIBRARY_TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCache_RoundTrip(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	c := NewCache(client, "test:"+t.Name()+":")

	_, err := c.Get(ctx, repository.CacheKeys.Dashboard())
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, repository.CacheKeys.Dashboard(), []byte("42"), time.Minute))
	got, err := c.Get(ctx, repository.CacheKeys.Dashboard())
	require.NoError(t, err)
	assert.Equal(t, "42", string(got))

	require.NoError(t, c.DeleteMulti(ctx, repository.CacheKeys.Reports()...))
	ok, err := c.Exists(ctx, repository.CacheKeys.Dashboard())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDistributedLock_Ownership(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	key := "test:lock:" + t.Name()

	a := NewDistributedLock(client)
	b := NewDistributedLock(client)

	ok, err := a.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer a.Release(ctx, key)

	ok, err = b.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := b.Release(ctx, key)
	require.NoError(t, err)
	assert.False(t, released, "non-owner must not release")

	extended, err := a.Extend(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)

	released, err = a.Release(ctx, key)
	require.NoError(t, err)
	assert.True(t, released)

	held, err := b.IsHeld(ctx, key)
	require.NoError(t, err)
	assert.False(t, held)
}
