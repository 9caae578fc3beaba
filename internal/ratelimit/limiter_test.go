package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/student-api/backend/internal/clock"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestLimiterSlidingWindow(t *testing.T) {
	client := newTestRedis(t)
	clk := clock.Fake(time.Now())
	limiter := NewLimiter(client, "test:"+uuid.NewString()+":", clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "login", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
		clk.Advance(time.Millisecond)
	}

	res, err := limiter.Allow(ctx, "login", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	clk.Advance(time.Minute)
	res, err = limiter.Allow(ctx, "login", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
