package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// TokenStats accumulates token usage across a process lifetime.
type TokenStats struct {
	TotalTokens      int `json:"total_tokens"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// TokenTracker persists cumulative token usage to a JSON file so long-running
// deployments can account for spend across restarts.
type TokenTracker struct {
	path  string
	mu    sync.Mutex
	stats TokenStats
}

// NewTokenTracker loads existing stats from path, or starts fresh when the
// file is missing or unreadable. Tracking failures never block the caller.
func NewTokenTracker(path string) (*TokenTracker, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	tracker := &TokenTracker{path: absPath}
	if err := tracker.load(); err != nil {
		slog.Warn("failed to load previous token stats", "path", absPath, "error", err)
	}
	return tracker, nil
}

func (t *TokenTracker) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, &t.stats); err != nil {
		return fmt.Errorf("failed to parse stats: %w", err)
	}
	return nil
}

// AddUsage folds one response's usage into the totals and saves.
func (t *TokenTracker) AddUsage(usage *TokenUsage) error {
	if usage == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.TotalTokens += usage.TotalTokens
	t.stats.PromptTokens += usage.PromptTokens
	t.stats.CompletionTokens += usage.CompletionTokens
	return t.saveLocked()
}

// Stats returns a copy of the current totals.
func (t *TokenTracker) Stats() TokenStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *TokenTracker) saveLocked() error {
	data, err := json.MarshalIndent(t.stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return os.WriteFile(t.path, data, 0o644)
}

// TrackingClient wraps a Client and records every response's token usage.
type TrackingClient struct {
	client  Client
	tracker *TokenTracker
}

// NewTrackingClient creates the wrapper.
func NewTrackingClient(client Client, tracker *TokenTracker) *TrackingClient {
	return &TrackingClient{client: client, tracker: tracker}
}

// Chat implements Client.
func (c *TrackingClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	resp, err := c.client.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	if resp.TokensUsed != nil {
		if err := c.tracker.AddUsage(resp.TokensUsed); err != nil {
			slog.Warn("failed to save token usage", "error", err)
		}
	}
	return resp, nil
}

// ChatWithStructuredOutput implements Client. Structured calls report usage
// through the tracker only when the provider returns it inline, which the
// OpenAI clients do not for raw JSON responses.
func (c *TrackingClient) ChatWithStructuredOutput(ctx context.Context, messages []Message, schema any) (json.RawMessage, error) {
	return c.client.ChatWithStructuredOutput(ctx, messages, schema)
}

// Close implements Client.
func (c *TrackingClient) Close() error {
	return c.client.Close()
}
