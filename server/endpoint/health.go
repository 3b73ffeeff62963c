package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/boundguard/health"
	"github.com/kbukum/boundguard/server/respond"
	"github.com/kbukum/boundguard/status"
)

// Health returns a handler that reports the aggregated health ladder.
// Unhealthy answers 503; healthy and degraded answer 200. A request
// abandoned while the checks ran gets the taxonomy error instead.
func Health(reg *status.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		report := reg.Health(ctx)
		if err := ctx.Err(); err != nil {
			respond.Error(c, err)
			return
		}

		httpStatus := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, gin.H{
			"status":     report.Status,
			"service":    reg.Service(),
			"timestamp":  report.Timestamp,
			"components": report.Components,
		})
	}
}
