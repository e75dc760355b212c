// Package routes wires the HTTP surface.
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearrail/clearrail/internal/api/middleware"
	"github.com/clearrail/clearrail/internal/infrastructure/di"
)

// SetupRoutes builds the gin router for the settlement service
func SetupRoutes(container *di.Container) *gin.Engine {
	cfg := container.Config
	zlog := container.Log.Zap()

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", healthHandler(container))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlerTimeout := time.Duration(cfg.Webhooks.HandlerTimeoutSeconds) * time.Second

	v1 := router.Group("/api/v1")

	hooks := v1.Group("/webhooks")
	hooks.Use(
		middleware.MaxRequestBodySize(),
		middleware.WebhookRateLimit(container.Redis, cfg.Webhooks.RateLimitPerMinute, zlog),
		middleware.TimeoutMiddleware(handlerTimeout),
	)
	hooks.POST("/offramp", container.OfframpHandler.HandleOrderEvent)
	hooks.POST("/onchain", container.OnchainHandler.HandleActivityEvent)

	pay := v1.Group("/payments")
	pay.Use(
		middleware.MaxRequestBodySize(),
		middleware.JWTAuth(cfg.Auth.JWTSecret),
		middleware.TimeoutMiddleware(handlerTimeout),
	)
	pay.POST("/status", container.StatusUpdateHandler.HandleStatusUpdate)

	return router
}

// healthHandler pings the backing stores
func healthHandler(container *di.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if err := container.DB.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
			return
		}

		redisStatus := "ok"
		if err := container.Redis.Ping(ctx).Err(); err != nil {
			// Redis is a cache; the service degrades but keeps settling
			redisStatus = "down"
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok", "redis": redisStatus})
	}
}
