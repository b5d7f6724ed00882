package endpoint

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grantsnap/statekit/version"
)

// Version returns a handler that reports the build identity.
func Version(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": serviceName,
			"build":   version.Get(),
		})
	}
}
