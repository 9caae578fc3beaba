// Package ratelimit throttles credential endpoints with a Redis sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/student-api/backend/internal/clock"
)

const DefaultKeyPrefix = "studentapi:ratelimit:"

// slidingWindow trims the sorted set to the window, then admits the request
// if fewer than limit members remain. Returns {allowed, remaining, reset_ms}.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)

	if current < limit then
		local counter = redis.call('INCR', key .. ':counter')
		redis.call('ZADD', key, now, now .. ':' .. counter)
		local expire_seconds = math.ceil(window_ms / 1000)
		redis.call('EXPIRE', key, expire_seconds)
		redis.call('EXPIRE', key .. ':counter', expire_seconds)
		return {1, limit - current - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local reset_at = 0
	if oldest and #oldest >= 2 then
		reset_at = tonumber(oldest[2]) + window_ms
	end
	return {0, 0, reset_at}
`)

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
}

type Limiter struct {
	client    redis.Scripter
	keyPrefix string
	clock     clock.Clock
}

func NewLimiter(client redis.Scripter, keyPrefix string, clk clock.Clock) *Limiter {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Limiter{client: client, keyPrefix: keyPrefix, clock: clk}
}

func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := l.clock.Now()
	windowStart := now.Add(-window)

	res, err := slidingWindow.Run(ctx, l.client, []string{l.keyPrefix + key},
		now.UnixMilli(), windowStart.UnixMilli(), limit, window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis script error: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("unexpected redis response length: %d", len(res))
	}

	resetAt := now.Add(window)
	if res[2] > 0 {
		resetAt = time.UnixMilli(res[2])
	}

	return &Result{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetAt:   resetAt,
		Limit:     limit,
	}, nil
}
