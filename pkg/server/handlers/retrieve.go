package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/server/dto"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// RetrieveHandler handles retrieval and answering requests.
type RetrieveHandler struct {
	engine reliquary.Reliquary
}

// NewRetrieveHandler creates a new retrieve handler.
func NewRetrieveHandler(engine reliquary.Reliquary) *RetrieveHandler {
	return &RetrieveHandler{engine: engine}
}

// Retrieve handles POST /retrieve
func (h *RetrieveHandler) Retrieve(c *gin.Context) {
	var req dto.RetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: "query must not be empty",
		})
		return
	}

	result, err := h.engine.Retrieve(c.Request.Context(), req.Query, &reliquary.RetrieveOptions{
		TopN:            req.TopN,
		K:               req.K,
		DiversityWeight: req.DiversityWeight,
		Depth:           req.Depth,
		AnalyzeQuery:    req.Analyze,
	})
	if err != nil {
		status, code := errorStatus(err, "retrieval_failed")
		c.JSON(status, dto.ErrorResponse{Error: code, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Answer handles POST /answer
func (h *RetrieveHandler) Answer(c *gin.Context) {
	var req dto.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_request",
			Message: "question must not be empty",
		})
		return
	}

	answer, err := h.engine.Answer(c.Request.Context(), req.Question, &reliquary.AnswerOptions{
		Retrieve: &reliquary.RetrieveOptions{
			TopN:            req.TopN,
			K:               req.K,
			DiversityWeight: req.DiversityWeight,
			Depth:           req.Depth,
		},
	})
	if err != nil {
		status, code := errorStatus(err, "answer_failed")
		c.JSON(status, dto.ErrorResponse{Error: code, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, answer)
}

// errorStatus maps engine errors to an HTTP status and machine-readable
// code, with a fallback code for everything unclassified.
func errorStatus(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, types.ErrNoActiveBuild):
		return http.StatusConflict, "no_active_build"
	case errors.Is(err, types.ErrNoLanguageModel):
		return http.StatusNotImplemented, "llm_not_configured"
	}
	return http.StatusInternalServerError, fallback
}
