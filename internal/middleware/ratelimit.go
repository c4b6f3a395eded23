package middleware

import (
	"net/http"
	"time"

	"coreops/internal/config"
	appmetrics "coreops/internal/metrics"
	"coreops/internal/services"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware applies a per client IP sliding window from
// cfg.Security.RateLimiting. Disabled config is a no-op.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled || rl.Requests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	window := rl.Window
	if window <= 0 {
		window = time.Minute
	}
	limiter := services.NewRateLimiter(rl.Requests, window)
	whitelist := make(map[string]struct{}, len(rl.WhitelistIPs))
	for _, ip := range rl.WhitelistIPs {
		whitelist[ip] = struct{}{}
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		if _, ok := whitelist[key]; ok {
			c.Next()
			return
		}
		if !limiter.Allow(key) {
			appmetrics.IncRateLimitDrop("http")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
