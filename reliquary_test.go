package reliquary_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	knakk "github.com/knakk/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reliquary "github.com/soundprediction/go-reliquary"
	"github.com/soundprediction/go-reliquary/pkg/config"
	"github.com/soundprediction/go-reliquary/pkg/llm"
	"github.com/soundprediction/go-reliquary/pkg/prompts"
	"github.com/soundprediction/go-reliquary/pkg/rdf"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

const (
	churchIRI  = "http://example.org/kg/church"
	panelIRI   = "http://example.org/kg/panel"
	donorIRI   = "http://example.org/kg/donor"
	villageIRI = "http://example.org/kg/village"
)

const scenarioNT = `<http://example.org/kg/church> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.cidoc-crm.org/cidoc-crm/E22_Man-Made_Object> .
<http://example.org/kg/church> <http://www.w3.org/2000/01/rdf-schema#label> "Village Church" .
<http://example.org/kg/church> <http://www.cidoc-crm.org/cidoc-crm/P3_has_note> "A late gothic village church." .
<http://example.org/kg/church> <http://example.org/onto/contains> <http://example.org/kg/panel> .
<http://example.org/kg/church> <http://example.org/onto/locatedIn> <http://example.org/kg/village> .
<http://example.org/kg/panel> <http://www.w3.org/2000/01/rdf-schema#label> "Altar Panel" .
<http://example.org/kg/panel> <http://www.cidoc-crm.org/cidoc-crm/P3_has_note> "A winged altar panel." .
<http://example.org/kg/panel> <http://example.org/onto/depicts> <http://example.org/kg/donor> .
<http://example.org/kg/donor> <http://www.w3.org/2000/01/rdf-schema#label> "The Donor" .
<http://example.org/kg/donor> <http://www.cidoc-crm.org/cidoc-crm/P3_has_note> "Portrait of the donor." .
<http://example.org/kg/village> <http://www.w3.org/2000/01/rdf-schema#label> "Flechtingen" .
<http://example.org/kg/village> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.cidoc-crm.org/cidoc-crm/E53_Place> .
`

func scenarioSource() rdf.Source {
	return rdf.ReaderSource{
		Reader: strings.NewReader(scenarioNT),
		Format: knakk.NTriples,
		Label:  "scenario",
	}
}

// fakeEmbedder maps document texts and queries to fixed vectors so the
// pipeline is fully deterministic without a provider.
type fakeEmbedder struct {
	mu      sync.Mutex
	singles int
}

func (f *fakeEmbedder) vector(text string) []float32 {
	switch {
	case strings.HasPrefix(text, "Village Church"):
		return []float32{0.9, 0.1, 0}
	case strings.HasPrefix(text, "Altar Panel"):
		return []float32{0.8, 0.3, 0.1}
	case strings.HasPrefix(text, "The Donor"):
		return []float32{0.1, 0.9, 0.2}
	case strings.HasPrefix(text, "Flechtingen"):
		return []float32{0.2, 0.2, 0.9}
	default:
		// Queries lean toward the church.
		return []float32{0.95, 0.05, 0}
	}
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.singles++
	f.mu.Unlock()
	return f.vector(text), nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Close() error    { return nil }

func (f *fakeEmbedder) singleCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.singles
}

// scriptedLLM returns canned completions and records what it was asked.
type scriptedLLM struct {
	mu         sync.Mutex
	reply      string
	structured json.RawMessage
	chatCalls  int
	lastChat   []llm.Message
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatCalls++
	s.lastChat = messages
	return &llm.Response{
		Content: s.reply,
		TokensUsed: &llm.TokenUsage{
			PromptTokens:     100,
			CompletionTokens: 20,
			TotalTokens:      120,
		},
	}, nil
}

func (s *scriptedLLM) ChatWithStructuredOutput(ctx context.Context, messages []llm.Message, schema any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.structured == nil {
		return json.RawMessage(`{"entities":[]}`), nil
	}
	return s.structured, nil
}

func (s *scriptedLLM) Close() error { return nil }

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatCalls
}

func (s *scriptedLLM) lastUserPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.lastChat {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.DataDir = t.TempDir()
	cfg.Embedding.CacheTTL = "0"
	cfg.LLM.Provider = "none"
	cfg.LLM.ContextBudget = 0
	return cfg
}

func newTestClient(t *testing.T, cfg *config.Config, llmClient llm.Client) (*reliquary.Client, *fakeEmbedder) {
	t.Helper()
	emb := &fakeEmbedder{}
	client, err := reliquary.New(context.Background(), cfg, &reliquary.Dependencies{
		Embedder: emb,
		LLM:      llmClient,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close(context.Background()) })
	return client, emb
}

func blockByOrigin(t *testing.T, blocks []types.ContextBlock, origin string) types.ContextBlock {
	t.Helper()
	for _, b := range blocks {
		if b.Origin == origin {
			return b
		}
	}
	t.Fatalf("no block for origin %s", origin)
	return types.ContextBlock{}
}

func selectedIDs(selected []types.SelectedEntity) []string {
	ids := make([]string, len(selected))
	for i, s := range selected {
		ids[i] = s.ID
	}
	return ids
}

func TestRebuildAndRetrieve(t *testing.T) {
	client, _ := newTestClient(t, newTestConfig(t), nil)
	ctx := context.Background()

	stats, err := client.Rebuild(ctx, scenarioSource())
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Triples)
	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 3, stats.Edges)
	assert.Equal(t, 0, stats.DroppedEdges)
	assert.Equal(t, 4, stats.Embedded)
	assert.NotEmpty(t, stats.SnapshotID)

	result, err := client.Retrieve(ctx, "Tell me about the old chapel", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.RequestID)

	result, err = client.Retrieve(ctx, "Tell me about the village church", &reliquary.RetrieveOptions{K: 2})
	require.NoError(t, err)
	require.Len(t, result.Selected, 2)
	assert.ElementsMatch(t, []string{churchIRI, panelIRI}, selectedIDs(result.Selected))
	assert.Equal(t, 1, result.Selected[0].Rank)
	assert.Equal(t, 2, result.Selected[1].Rank)

	require.Len(t, result.Blocks, 2)
	church := blockByOrigin(t, result.Blocks, churchIRI)
	assert.Equal(t, []string{
		"Village Church. A late gothic village church.",
		"Village Church contains Altar Panel.",
		"Village Church is located in Flechtingen.",
	}, church.Lines)

	panel := blockByOrigin(t, result.Blocks, panelIRI)
	assert.Equal(t, []string{
		"Altar Panel. A winged altar panel.",
		"Village Church contains Altar Panel.",
		"Altar Panel depicts The Donor.",
	}, panel.Lines)

	assert.Contains(t, result.Context, "Village Church contains Altar Panel.")
	assert.Contains(t, result.Context, "is located in Flechtingen.")
}

func TestRetrieveDeterministic(t *testing.T) {
	client, _ := newTestClient(t, newTestConfig(t), nil)
	ctx := context.Background()

	_, err := client.Rebuild(ctx, scenarioSource())
	require.NoError(t, err)

	first, err := client.Retrieve(ctx, "village church altar", &reliquary.RetrieveOptions{K: 3})
	require.NoError(t, err)

	for range 5 {
		again, err := client.Retrieve(ctx, "village church altar", &reliquary.RetrieveOptions{K: 3})
		require.NoError(t, err)
		assert.Equal(t, selectedIDs(first.Selected), selectedIDs(again.Selected))
		assert.Equal(t, first.Context, again.Context)
	}
}

func TestRetrieveBeforeBuild(t *testing.T) {
	client, _ := newTestClient(t, newTestConfig(t), nil)

	_, err := client.Retrieve(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoActiveBuild)
}

func TestRetrieveEmptyQuery(t *testing.T) {
	client, _ := newTestClient(t, newTestConfig(t), nil)

	_, err := client.Retrieve(context.Background(), "   ", nil)
	require.Error(t, err)
}

func TestRetrieveDepthZeroSkipsExpansion(t *testing.T) {
	client, _ := newTestClient(t, newTestConfig(t), nil)
	ctx := context.Background()

	_, err := client.Rebuild(ctx, scenarioSource())
	require.NoError(t, err)

	depth := 0
	result, err := client.Retrieve(ctx, "village church", &reliquary.RetrieveOptions{K: 1, Depth: &depth})
	require.NoError(t, err)
	require.Len(t, result.Blocks, 1)
	assert.Len(t, result.Blocks[0].Lines, 1)
}

func TestRetrieveUsesEmbeddingCache(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Embedding.CacheTTL = "1h"
	client, emb := newTestClient(t, cfg, nil)
	ctx := context.Background()

	_, err := client.Rebuild(ctx, scenarioSource())
	require.NoError(t, err)

	_, err = client.Retrieve(ctx, "village church", nil)
	require.NoError(t, err)
	_, err = client.Retrieve(ctx, "village church", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, emb.singleCalls())
}

func TestAnswerGrounded(t *testing.T) {
	model := &scriptedLLM{reply: "The Village Church contains the Altar Panel."}
	client, _ := newTestClient(t, newTestConfig(t), model)
	ctx := context.Background()

	_, err := client.Rebuild(ctx, scenarioSource())
	require.NoError(t, err)

	answer, err := client.Answer(ctx, "What does the village church contain?", nil)
	require.NoError(t, err)
	assert.Equal(t, "The Village Church contains the Altar Panel.", answer.Answer)
	assert.Equal(t, 1, model.calls())

	require.NotNil(t, answer.Usage)
	assert.Equal(t, 120, answer.Usage.TotalTokens)
	assert.InDelta(t, 0.00045, answer.CostUSD, 1e-9)

	prompt := model.lastUserPrompt()
	assert.Contains(t, prompt, "What does the village church contain?")
	assert.Contains(t, prompt, "Village Church contains Altar Panel.")
}

func TestAnswerRefusesWithoutData(t *testing.T) {
	model := &scriptedLLM{reply: "should never be asked"}
	client, _ := newTestClient(t, newTestConfig(t), model)
	ctx := context.Background()

	empty := rdf.ReaderSource{Reader: strings.NewReader(""), Format: knakk.NTriples, Label: "empty"}
	stats, err := client.Rebuild(ctx, empty)
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)

	answer, err := client.Answer(ctx, "What does the church contain?", nil)
	require.NoError(t, err)
	assert.Equal(t, prompts.NoDataRefusal, answer.Answer)
	assert.Zero(t, model.calls())
}

func TestAnswerWithoutModel(t *testing.T) {
	client, _ := newTestClient(t, newTestConfig(t), nil)
	ctx := context.Background()

	_, err := client.Rebuild(ctx, scenarioSource())
	require.NoError(t, err)

	_, err = client.Answer(ctx, "who made the panel?", nil)
	assert.ErrorIs(t, err, types.ErrNoLanguageModel)
}

func TestAnalyzeQueryAttachesFocus(t *testing.T) {
	model := &scriptedLLM{
		reply:      "unused",
		structured: json.RawMessage(`{"entities":["village church", "Atlantis"]}`),
	}
	client, _ := newTestClient(t, newTestConfig(t), model)
	ctx := context.Background()

	_, err := client.Rebuild(ctx, scenarioSource())
	require.NoError(t, err)

	analyze := true
	result, err := client.Retrieve(ctx, "Where is the Village Church?", &reliquary.RetrieveOptions{
		AnalyzeQuery: &analyze,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Village Church"}, result.Focus)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t, newTestConfig(t), nil)

	_, err := client.Rebuild(ctx, scenarioSource())
	require.NoError(t, err)

	baseline, err := client.Retrieve(ctx, "village church", &reliquary.RetrieveOptions{K: 2})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "scenario.duckdb")
	require.NoError(t, client.Save(ctx, path))

	restored, _ := newTestClient(t, newTestConfig(t), nil)
	require.NoError(t, restored.Load(ctx, path))

	stats, err := restored.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 3, stats.Edges)
	assert.Equal(t, 4, stats.IndexSize)

	result, err := restored.Retrieve(ctx, "village church", &reliquary.RetrieveOptions{K: 2})
	require.NoError(t, err)
	assert.Equal(t, selectedIDs(baseline.Selected), selectedIDs(result.Selected))
	assert.Equal(t, baseline.Context, result.Context)
}

func TestSaveWithoutBuild(t *testing.T) {
	client, _ := newTestClient(t, newTestConfig(t), nil)

	err := client.Save(context.Background(), filepath.Join(t.TempDir(), "never.duckdb"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNoActiveBuild)
}

func TestStatsTracksBuilds(t *testing.T) {
	client, _ := newTestClient(t, newTestConfig(t), nil)
	ctx := context.Background()

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
	assert.Empty(t, stats.SnapshotID)

	_, err = client.Rebuild(ctx, scenarioSource())
	require.NoError(t, err)

	first, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Documents)
	assert.Equal(t, 3, first.Edges)
	assert.Equal(t, 4, first.IndexSize)
	assert.NotEmpty(t, first.SnapshotID)

	_, err = client.Rebuild(ctx, scenarioSource())
	require.NoError(t, err)

	second, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.SnapshotID, second.SnapshotID)
}
