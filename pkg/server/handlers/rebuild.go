package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/rdf"
	"github.com/soundprediction/go-reliquary/pkg/server/dto"
)

// RebuildHandler handles graph build administration.
type RebuildHandler struct {
	engine reliquary.Reliquary
}

// NewRebuildHandler creates a new rebuild handler.
func NewRebuildHandler(engine reliquary.Reliquary) *RebuildHandler {
	return &RebuildHandler{engine: engine}
}

// Rebuild handles POST /rebuild. The build runs synchronously; the old
// build keeps serving queries until the new one swaps in.
func (h *RebuildHandler) Rebuild(c *gin.Context) {
	var req dto.RebuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	source, err := rdf.SourceFor(req.Path, req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	stats, err := h.engine.Rebuild(c.Request.Context(), source)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "rebuild_failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Stats handles GET /stats
func (h *RebuildHandler) Stats(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "stats_failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
