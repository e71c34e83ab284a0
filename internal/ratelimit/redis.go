package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkScript applies the fixed-window rule atomically. It returns
// {allowed, pttl}.
var checkScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
	return {0, redis.call('PTTL', KEYS[1])}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter shares counters between every instance pointed at the same
// redis database.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "rate_limit:",
	}
}

func (l *RedisLimiter) Check(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	const op = "ratelimit.RedisLimiter.Check"

	vals, err := checkScript.Run(ctx, l.client, []string{l.prefix + key}, max, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("%s: unexpected script reply %v", op, vals)
	}

	if vals[0] == 1 {
		return Result{Allowed: true}, nil
	}

	remaining := time.Duration(vals[1]) * time.Millisecond
	if vals[1] < 0 {
		remaining = window
	}
	return Result{Allowed: false, RetryAfter: retryAfterSeconds(remaining)}, nil
}
