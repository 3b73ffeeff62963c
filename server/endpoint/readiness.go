package endpoint

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/boundguard/loop"
	"github.com/kbukum/boundguard/status"
)

// Readiness returns a handler for K8s readiness probes. The service is
// ready while every registered loop is running.
func Readiness(reg *status.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := "ready"
		httpStatus := http.StatusOK
		var notRunning []string

		for _, l := range reg.Loops() {
			if l.State() != loop.StateRunning {
				notRunning = append(notRunning, l.Name())
			}
		}
		if len(notRunning) > 0 {
			state = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		}

		body := gin.H{
			"status":    state,
			"service":   reg.Service(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if len(notRunning) > 0 {
			body["loops"] = notRunning
		}
		c.JSON(httpStatus, body)
	}
}
