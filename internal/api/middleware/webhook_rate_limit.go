package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WebhookRateLimit caps deliveries per provider per minute using a
// Redis counter. The counter is shared across instances behind the load
// balancer. Redis errors fail open: a cache outage must not drop
// settlements.
func WebhookRateLimit(redisClient *redis.Client, limitPerMinute int, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil || limitPerMinute <= 0 {
			c.Next()
			return
		}

		provider := extractProviderFromPath(c.Request.URL.Path)
		if provider == "" {
			provider = "unknown"
		}

		ctx := c.Request.Context()
		key := "webhook:rate:" + provider + ":" + time.Now().UTC().Format("200601021504")

		count, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			logger.Error("Rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			redisClient.Expire(ctx, key, time.Minute)
		}

		if count > int64(limitPerMinute) {
			logger.Warn("Webhook rate limited",
				zap.String("provider", provider),
				zap.Int64("count", count))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "Too many webhook requests",
			})
			return
		}

		c.Next()
	}
}

// extractProviderFromPath extracts the provider name from a webhook path
// such as /api/v1/webhooks/offramp.
func extractProviderFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if part == "webhooks" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
