package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalEmbedder implements the Client interface against an Ollama-compatible
// inference server, so a graph can be embedded without any hosted provider.
type LocalEmbedder struct {
	config     *LocalConfig
	httpClient *http.Client
}

// LocalConfig extends Config with local-server settings.
type LocalConfig struct {
	*Config
	Timeout time.Duration `json:"timeout,omitempty"`
}

// NewLocalEmbedder creates an embedder talking to an Ollama-compatible
// /api/embed endpoint.
func NewLocalEmbedder(config *LocalConfig) *LocalEmbedder {
	if config.Config == nil {
		config.Config = &Config{}
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "nomic-embed-text"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 64
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &LocalEmbedder{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// localEmbedRequest represents the request structure for the embed API.
type localEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// localEmbedResponse represents the response from the embed API.
type localEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed generates embeddings for the given texts.
func (l *LocalEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var allEmbeddings [][]float32
	for i := 0; i < len(texts); i += l.config.BatchSize {
		end := i + l.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		embeddings, err := l.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}
	return allEmbeddings, nil
}

func (l *LocalEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := localEmbedRequest{
		Model: l.config.Model,
		Input: texts,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", l.config.BaseURL+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range l.config.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var embedResp localEmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if embedResp.Error != "" {
		return nil, fmt.Errorf("embed server error: %s", embedResp.Error)
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed server returned %d embeddings for %d texts", len(embedResp.Embeddings), len(texts))
	}

	return embedResp.Embeddings, nil
}

// EmbedSingle generates an embedding for a single text.
func (l *LocalEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := l.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}

// Dimensions returns the configured embedding width. Local models report it
// implicitly through the first response when the config leaves it zero.
func (l *LocalEmbedder) Dimensions() int {
	return l.config.Dimensions
}

// Close cleans up any resources.
func (l *LocalEmbedder) Close() error {
	return nil
}
