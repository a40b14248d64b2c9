package mcp

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/rdf"
)

// Tool request/response types

// RetrieveRequest represents retrieval parameters
type RetrieveRequest struct {
	Query string `json:"query"`
	TopN  int    `json:"top_n,omitempty"`
	K     int    `json:"k,omitempty"`
	Depth *int   `json:"depth,omitempty"`
}

// AnswerRequest represents a grounded question
type AnswerRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

// RebuildRequest represents parameters for rebuilding the graph
type RebuildRequest struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
}

// StatsRequest represents parameters for the stats tool
type StatsRequest struct{}

// ToolResponse is a generic response wrapper
type ToolResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// RetrieveTool handles graph retrieval for a query
func (s *Server) RetrieveTool(ctx *ai.ToolContext, input *RetrieveRequest) (*ToolResponse, error) {
	if input.Query == "" {
		return &ToolResponse{
			Success: false,
			Error:   "Query is required",
		}, nil
	}

	result, err := s.engine.Retrieve(ctx.Context, input.Query, &reliquary.RetrieveOptions{
		TopN:  input.TopN,
		K:     input.K,
		Depth: input.Depth,
	})
	if err != nil {
		s.logger.Error("Failed to retrieve entities", "error", err)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to retrieve entities: %v", err),
		}, nil
	}

	if len(result.Selected) == 0 {
		return &ToolResponse{
			Success: true,
			Message: "No relevant entities found",
			Data:    []interface{}{},
		}, nil
	}

	labels := make(map[string]string, len(result.Blocks))
	for _, block := range result.Blocks {
		labels[block.Origin] = block.Label
	}

	entities := make([]map[string]interface{}, len(result.Selected))
	for i, sel := range result.Selected {
		entities[i] = map[string]interface{}{
			"id":              sel.ID,
			"label":           labels[sel.ID],
			"score":           sel.Score,
			"effective_score": sel.Effective,
			"rank":            sel.Rank,
		}
	}

	return &ToolResponse{
		Success: true,
		Message: "Entities retrieved successfully",
		Data: map[string]interface{}{
			"entities":   entities,
			"context":    result.Context,
			"request_id": result.RequestID,
		},
	}, nil
}

// AnswerTool handles grounded question answering
func (s *Server) AnswerTool(ctx *ai.ToolContext, input *AnswerRequest) (*ToolResponse, error) {
	if input.Question == "" {
		return &ToolResponse{
			Success: false,
			Error:   "Question is required",
		}, nil
	}

	answer, err := s.engine.Answer(ctx.Context, input.Question, &reliquary.AnswerOptions{
		Retrieve: &reliquary.RetrieveOptions{K: input.K},
	})
	if err != nil {
		s.logger.Error("Failed to answer question", "error", err)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to answer question: %v", err),
		}, nil
	}

	data := map[string]interface{}{
		"answer":   answer.Answer,
		"model":    answer.Model,
		"cost_usd": answer.CostUSD,
	}
	if answer.Usage != nil {
		data["total_tokens"] = answer.Usage.TotalTokens
	}

	return &ToolResponse{
		Success: true,
		Message: "Question answered successfully",
		Data:    data,
	}, nil
}

// StatsTool reports the active graph build
func (s *Server) StatsTool(ctx *ai.ToolContext, input *StatsRequest) (*ToolResponse, error) {
	stats, err := s.engine.Stats(ctx.Context)
	if err != nil {
		s.logger.Error("Failed to read graph stats", "error", err)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to read graph stats: %v", err),
		}, nil
	}

	if stats.SnapshotID == "" {
		return &ToolResponse{
			Success: true,
			Message: "No active graph build",
		}, nil
	}

	return &ToolResponse{
		Success: true,
		Message: "Stats retrieved successfully",
		Data: map[string]interface{}{
			"snapshot_id": stats.SnapshotID,
			"documents":   stats.Documents,
			"edges":       stats.Edges,
			"index_size":  stats.IndexSize,
			"built_at":    stats.BuiltAt,
		},
	}, nil
}

// RebuildTool rebuilds the graph from an RDF export on disk
func (s *Server) RebuildTool(ctx *ai.ToolContext, input *RebuildRequest) (*ToolResponse, error) {
	if input.Path == "" {
		return &ToolResponse{
			Success: false,
			Error:   "Path is required",
		}, nil
	}

	source, err := rdf.SourceFor(input.Path, input.Format)
	if err != nil {
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Invalid rdf source: %v", err),
		}, nil
	}

	stats, err := s.engine.Rebuild(ctx.Context, source)
	if err != nil {
		s.logger.Error("Failed to rebuild graph", "error", err)
		return &ToolResponse{
			Success: false,
			Error:   fmt.Sprintf("Failed to rebuild graph: %v", err),
		}, nil
	}

	s.logger.Info("Graph rebuilt", "snapshot_id", stats.SnapshotID, "documents", stats.Documents)
	return &ToolResponse{
		Success: true,
		Message: fmt.Sprintf("Graph rebuilt from %s", input.Path),
		Data: map[string]interface{}{
			"snapshot_id":   stats.SnapshotID,
			"documents":     stats.Documents,
			"edges":         stats.Edges,
			"dropped_edges": stats.DroppedEdges,
			"embedded":      stats.Embedded,
		},
	}, nil
}
