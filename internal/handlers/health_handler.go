package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck answers liveness probes with 200 and no body. It does not
// touch the store.
func HealthCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}
