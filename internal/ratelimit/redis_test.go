package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisLimiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisLimiter(client)
}

func TestRedisLimiterWindow(t *testing.T) {
	mr, l := newTestRedis(t)
	ctx := context.Background()
	window := 900 * time.Second

	for i := 0; i < 5; i++ {
		res, err := l.Check(ctx, "magic-link:10.0.0.9", 5, window)
		require.NoError(t, err)
		require.True(t, res.Allowed, "call %d", i+1)
	}

	res, err := l.Check(ctx, "magic-link:10.0.0.9", 5, window)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 900, res.RetryAfter)

	// The denied call must not have incremented the stored counter.
	val, err := mr.Get("rate_limit:magic-link:10.0.0.9")
	require.NoError(t, err)
	require.Equal(t, "5", val)

	mr.FastForward(window + time.Second)

	res, err = l.Check(ctx, "magic-link:10.0.0.9", 5, window)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestRedisLimiterStoreError(t *testing.T) {
	mr, l := newTestRedis(t)
	mr.Close()

	_, err := l.Check(context.Background(), "k", 1, time.Minute)
	require.Error(t, err)
}
