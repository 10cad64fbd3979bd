package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/artcatalog/backend/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RateLimiter limits requests per client IP within RATE_LIMIT_DURATION.
// Without Redis, or when Redis fails, requests pass through.
func RateLimiter(redisClient *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || cfg.RateLimitRequests <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("rate_limit:%s", c.ClientIP())
		count, ttl, err := hit(c.Request.Context(), redisClient, key, cfg.RateLimitDuration)
		if err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RateLimitRequests))
		if count > int64(cfg.RateLimitRequests) {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     "too many requests",
				"retry_after": ttl.Seconds(),
			})
			return
		}
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int64(cfg.RateLimitRequests)-count))
		c.Next()
	}
}

// UploadRateLimit caps image uploads per client IP and day. Apply it to upload
// routes only; the key resets at midnight.
func UploadRateLimit(redisClient *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || cfg.UploadDailyLimit <= 0 || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
		key := fmt.Sprintf("upload_limit:%s:%s", c.ClientIP(), now.Format("2006-01-02"))

		count, ttl, err := hit(c.Request.Context(), redisClient, key, midnight.Sub(now))
		if err != nil {
			log.Warn().Err(err).Msg("upload rate limiter unavailable")
			c.Next()
			return
		}
		if count > int64(cfg.UploadDailyLimit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":               "upload_rate_limit_exceeded",
				"message":             "too many uploads today, please try again tomorrow",
				"retry_after_hours":   int(ttl.Hours()),
				"max_uploads_per_day": cfg.UploadDailyLimit,
			})
			return
		}
		c.Next()
	}
}

// hit increments key, starting its expiry window on the first hit, and returns
// the new count and the remaining TTL.
func hit(ctx context.Context, rdb *redis.Client, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	// a key without expiry would never reset
	if count == 1 || ttl < 0 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return count, ttl, nil
}
