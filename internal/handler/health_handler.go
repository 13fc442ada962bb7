package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// Healthz reports process liveness.
// GET /healthz
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(startTime).String(),
	})
}

// Readyz reports readiness: the service can serve once the ledger
// answers a ping.
// GET /readyz
func (h *Handler) Readyz(c *gin.Context) {
	if h.PingDB != nil {
		if err := h.PingDB(c.Request.Context()); err != nil {
			h.log.Error("readiness probe: database ping failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
