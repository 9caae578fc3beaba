package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/student-api/backend/internal/clock"
	"github.com/stretchr/testify/assert"
)

type countingLimiter struct {
	allowed int
	calls   int
	keys    []string
	err     error
	resetAt time.Time
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	l.calls++
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}
	if l.calls > l.allowed {
		resetAt := l.resetAt
		if resetAt.IsZero() {
			resetAt = time.Now().Add(window)
		}
		return &Result{Allowed: false, Limit: limit, ResetAt: resetAt}, nil
	}
	return &Result{Allowed: true, Limit: limit, Remaining: l.allowed - l.calls}, nil
}

func newThrottledRouter(limiter Allower) *gin.Engine {
	return newThrottledRouterAt(limiter, nil)
}

func newThrottledRouterAt(limiter Allower, clk clock.Clock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router.POST("/auth/login", Middleware(limiter, 2, time.Minute, clk, logger), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	limiter := &countingLimiter{allowed: 2}
	router := newThrottledRouter(limiter)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)

		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.Contains(t, rec.Body.String(), "RateLimit.Exceeded")
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "/auth/login:10.0.0.1", limiter.keys[0])
}

func TestMiddlewareFailsOpen(t *testing.T) {
	router := newThrottledRouter(&countingLimiter{err: errors.New("redis down")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRetryAfterUsesClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.Fake(now)
	limiter := &countingLimiter{allowed: 0, resetAt: now.Add(30*time.Second + 500*time.Millisecond)}
	router := newThrottledRouterAt(limiter, clk)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "31", rec.Header().Get("Retry-After"))

	clk.Advance(time.Minute)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
