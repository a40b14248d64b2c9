// Package mcp exposes the retrieval engine as model-context-protocol style
// tools. Handlers follow the genkit tool shape so hosts can register them
// directly; Run serves them as line-delimited JSON over a stream for stdio
// transports.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/soundprediction/go-reliquary"
)

// Server dispatches tool calls against a retrieval engine.
type Server struct {
	engine reliquary.Reliquary
	logger *slog.Logger
}

// NewServer creates a tool server for the given engine.
func NewServer(engine reliquary.Reliquary, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger}
}

// toolCall is one framed request: {"tool": "retrieve", "input": {...}}.
type toolCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// Run reads tool calls from r until EOF and writes one response per call
// to w. Responses come in request order.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	encoder := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp *ToolResponse
		var call toolCall
		if err := json.Unmarshal(line, &call); err != nil {
			resp = &ToolResponse{Success: false, Error: fmt.Sprintf("invalid tool call: %v", err)}
		} else {
			resp = s.dispatch(ctx, &call)
		}

		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("failed to write tool response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, call *toolCall) *ToolResponse {
	tctx := &ai.ToolContext{Context: ctx}

	switch call.Tool {
	case "retrieve":
		var input RetrieveRequest
		if resp := decodeInput(call.Input, &input); resp != nil {
			return resp
		}
		return mustResponse(s.RetrieveTool(tctx, &input))
	case "answer":
		var input AnswerRequest
		if resp := decodeInput(call.Input, &input); resp != nil {
			return resp
		}
		return mustResponse(s.AnswerTool(tctx, &input))
	case "stats":
		var input StatsRequest
		if resp := decodeInput(call.Input, &input); resp != nil {
			return resp
		}
		return mustResponse(s.StatsTool(tctx, &input))
	case "rebuild":
		var input RebuildRequest
		if resp := decodeInput(call.Input, &input); resp != nil {
			return resp
		}
		return mustResponse(s.RebuildTool(tctx, &input))
	default:
		return &ToolResponse{Success: false, Error: fmt.Sprintf("unknown tool %q", call.Tool)}
	}
}

// decodeInput unmarshals the raw input when present. A nil return means
// the input decoded cleanly.
func decodeInput(raw json.RawMessage, into interface{}) *ToolResponse {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return &ToolResponse{Success: false, Error: fmt.Sprintf("invalid tool input: %v", err)}
	}
	return nil
}

// mustResponse flattens the genkit handler signature. The handlers report
// every failure in-band, so the error is always nil.
func mustResponse(resp *ToolResponse, _ error) *ToolResponse {
	return resp
}
