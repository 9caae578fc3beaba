package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/student-api/backend/internal/clock"
	"github.com/student-api/backend/internal/model"
)

type Allower interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Middleware limits requests per client IP and route. Limiter errors let the
// request through.
func Middleware(limiter Allower, limit int, window time.Duration, clk clock.Clock, logger *slog.Logger) gin.HandlerFunc {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		key := c.FullPath() + ":" + c.ClientIP()

		result, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			retryAfter := int(math.Ceil(result.ResetAt.Sub(clk.Now()).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			logger.InfoContext(c.Request.Context(), "rate limit exceeded", "key", key, "limit", result.Limit)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, model.ErrorResponse{
				Error: "too many requests",
				Code:  "RateLimit.Exceeded",
			})
			return
		}

		c.Next()
	}
}
