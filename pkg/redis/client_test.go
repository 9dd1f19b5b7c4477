package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestTryLockExcludesSecondHolder(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	lock, err := c.TryLock(ctx, "transform:lock", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.True(t, mr.Exists("transform:lock"))

	second, err := c.TryLock(ctx, "transform:lock", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, second)

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("transform:lock"))

	again, err := c.TryLock(ctx, "transform:lock", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestReleaseAfterExpiryDoesNotStealLock(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	lock, err := c.TryLock(ctx, "transform:lock", time.Second)
	require.NoError(t, err)
	require.NotNil(t, lock)

	mr.FastForward(2 * time.Second)
	other, err := c.TryLock(ctx, "transform:lock", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, other)

	assert.ErrorIs(t, lock.Release(ctx), ErrNotHeld)
	assert.True(t, mr.Exists("transform:lock"))
}

func TestFlushByPattern(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("dashboard:contacts:acme", "x"))
	require.NoError(t, mr.Set("dashboard:contacts:other", "x"))
	require.NoError(t, mr.Set("dashboard:campaigns:acme", "x"))
	require.NoError(t, mr.Set("session:1", "x"))

	n, err := c.FlushByPattern(ctx, "dashboard:contacts:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.Exists("dashboard:campaigns:acme"))
	assert.True(t, mr.Exists("session:1"))
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
