package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-reliquary"
)

// HealthHandler handles health and readiness probes.
type HealthHandler struct {
	engine reliquary.Reliquary
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(engine reliquary.Reliquary) *HealthHandler {
	return &HealthHandler{engine: engine}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "reliquary",
	})
}

// ReadinessCheck handles GET /ready. The server is ready once a graph
// build is active.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil || stats.SnapshotID == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": "no active graph build",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ready",
		"snapshot_id": stats.SnapshotID,
		"documents":   stats.Documents,
	})
}
