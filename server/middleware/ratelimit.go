package middleware

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/boundguard/errors"
	"github.com/kbukum/boundguard/observability"
	"github.com/kbukum/boundguard/resilience"
	"github.com/kbukum/boundguard/server/respond"
)

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Limiter admits requests per key. Its bucket registry is bounded, so
	// distinct clients cannot grow memory without limit.
	Limiter *resilience.RateLimiter
	// KeyFunc extracts the rate limit key from a request. Defaults to client IP.
	KeyFunc func(*gin.Context) string
	// Metrics records decisions. Nil records nothing.
	Metrics *observability.Metrics
}

// RateLimit returns a Gin middleware that rejects requests over the
// limiter's budget with 429 and a Retry-After header. Probe paths pass.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPBasedKey
	}
	retryAfter := "1"
	if rate := cfg.Limiter.RefillRate(); rate > 0 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / rate)))
	}

	return func(c *gin.Context) {
		if IsProbe(c.Request.URL.Path) {
			c.Next()
			return
		}
		key := cfg.KeyFunc(c)
		allowed := cfg.Limiter.Allow(key)
		cfg.Metrics.RecordRateLimit(c.Request.Context(), cfg.Limiter.Name(), allowed)
		if !allowed {
			c.Header("Retry-After", retryAfter)
			respond.Abort(c, apperrors.RateLimited(key))
			return
		}
		c.Next()
	}
}

// IPBasedKey extracts the client IP for use as a rate limit key.
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}

// HeaderKey keys requests by header, falling back to the client IP.
func HeaderKey(header string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if v := c.GetHeader(header); v != "" {
			return v
		}
		return c.ClientIP()
	}
}
