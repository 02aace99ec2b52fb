package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Counter increments a key that expires after window and returns the new count.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	client redis.Cmdable
}

// NewRedisCounter counts with INCR and sets the expiry on the first hit.
func NewRedisCounter(client redis.Cmdable) Counter {
	return &redisCounter{client: client}
}

func (r *redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return incr.Val(), nil
}

// RateLimitConfig configures a fixed window limit per client IP.
type RateLimitConfig struct {
	Prefix string
	Limit  int64
	Window time.Duration
	Now    func() time.Time
}

// RateLimit rejects clients that exceed cfg.Limit requests per window. When the
// counter is unavailable requests are let through.
func RateLimit(counter Counter, cfg RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit"
	}
	windowSecs := int64(cfg.Window / time.Second)
	if windowSecs < 1 {
		windowSecs = 1
	}

	return func(c *gin.Context) {
		if cfg.Limit <= 0 || cfg.Window <= 0 {
			c.Next()
			return
		}

		now := cfg.Now()
		bucket := now.Unix() / windowSecs
		key := fmt.Sprintf("%s:%s:%d", cfg.Prefix, c.ClientIP(), bucket)

		count, err := counter.Incr(c.Request.Context(), key, cfg.Window)
		if err != nil {
			logger.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		remaining := cfg.Limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(cfg.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > cfg.Limit {
			windowEnd := time.Unix((bucket+1)*windowSecs, 0)
			retry := int64(windowEnd.Sub(now).Seconds()) + 1
			c.Header("Retry-After", strconv.FormatInt(retry, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Terlalu banyak permintaan"})
			return
		}

		c.Next()
	}
}
