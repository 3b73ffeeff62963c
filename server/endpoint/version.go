package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/boundguard/version"
)

// Version reports build information. With ?short=true only the short
// version string is returned.
func Version() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := version.Get()
		if c.Query("short") == "true" {
			c.JSON(http.StatusOK, gin.H{"version": info.Short(), "release": info.IsRelease()})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}
