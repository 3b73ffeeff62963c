package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/boundguard/logger"
)

// probePaths are polled by orchestrators and monitoring; they are neither
// logged nor rate limited.
var probePaths = map[string]bool{
	"/health":  true,
	"/alive":   true,
	"/ready":   true,
	"/metrics": true,
}

// IsProbe reports whether path is a probe endpoint.
func IsProbe(path string) bool {
	return probePaths[path]
}

// RequestLogger returns a Gin middleware that logs every request with
// method, path, status code and duration. Probe paths are skipped.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = logger.OrDefault(log, "server")
	return func(c *gin.Context) {
		if IsProbe(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		fields := logger.Fields(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			logger.FieldDuration, latency.Milliseconds(),
			"client", c.ClientIP(),
		)
		if id := c.GetString(RequestIDKey); id != "" {
			fields[logger.FieldRequestID] = id
		}
		if latency > 500*time.Millisecond {
			fields["slow"] = true
		}

		switch {
		case status >= 500:
			log.Error("request completed", fields)
		case status >= 400:
			log.Warn("request completed", fields)
		default:
			log.Debug("request completed", fields)
		}
	}
}
