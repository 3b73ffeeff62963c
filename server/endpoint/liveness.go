package endpoint

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Liveness returns a handler for K8s liveness probes. It only confirms the
// process can serve HTTP; guard state belongs to /health and /ready.
func Liveness(serviceName string) gin.HandlerFunc {
	started := time.Now()
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "alive",
			"service":  serviceName,
			"uptime_s": int64(time.Since(started).Seconds()),
		})
	}
}
