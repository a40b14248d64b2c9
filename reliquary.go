// Package reliquary implements graph-aware retrieval over CIDOC-CRM
// knowledge graphs. An RDF export is compiled into entity documents with
// embeddings; queries are answered by blending vector similarity with
// relationship evidence and graph importance, selecting a non-redundant
// subgraph, and expanding each pick into a textual context block along
// event-typed paths.
package reliquary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/soundprediction/go-reliquary/pkg/cache"
	"github.com/soundprediction/go-reliquary/pkg/config"
	"github.com/soundprediction/go-reliquary/pkg/cost"
	"github.com/soundprediction/go-reliquary/pkg/embedder"
	"github.com/soundprediction/go-reliquary/pkg/graph"
	"github.com/soundprediction/go-reliquary/pkg/index"
	"github.com/soundprediction/go-reliquary/pkg/llm"
	"github.com/soundprediction/go-reliquary/pkg/logger"
	"github.com/soundprediction/go-reliquary/pkg/ontology"
	"github.com/soundprediction/go-reliquary/pkg/prompts"
	"github.com/soundprediction/go-reliquary/pkg/rdf"
	"github.com/soundprediction/go-reliquary/pkg/retrieval"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

const tracerName = "github.com/soundprediction/go-reliquary"

// Reliquary is the main interface for querying a knowledge-graph build.
type Reliquary interface {
	// Retrieve runs the scoring pipeline for a query and returns the
	// selected entities with their assembled context blocks.
	Retrieve(ctx context.Context, query string, opts *RetrieveOptions) (*types.RetrievalResult, error)

	// Answer retrieves context for a question and completes it with the
	// configured language model.
	Answer(ctx context.Context, question string, opts *AnswerOptions) (*Answer, error)

	// Rebuild compiles an RDF source into a fresh build and swaps it in.
	// Queries keep running against the old build until the swap.
	Rebuild(ctx context.Context, source rdf.Source) (*types.BuildStats, error)

	// Save persists the active build to a snapshot file.
	Save(ctx context.Context, path string) error

	// Load restores a build from a snapshot file and swaps it in.
	Load(ctx context.Context, path string) error

	// Stats reports the currently active build.
	Stats(ctx context.Context) (types.GraphStats, error)

	// Close closes all connections and cleans up resources.
	Close(ctx context.Context) error
}

// build is one immutable compiled graph. The store never changes after
// construction; a rebuild produces a new value and swaps the pointer.
type build struct {
	store *graph.Store
	index index.Index
	meta  graph.SnapshotMeta
}

// Client is the main implementation of the Reliquary interface.
type Client struct {
	mu      sync.RWMutex
	current *build

	cfg       *config.Config
	embedder  embedder.Client
	llm       llm.Client
	cache     *cache.EmbeddingCache
	extIndex  index.Index
	ownIndex  bool
	table     *ontology.WeightTable
	events    *ontology.EventSet
	scorer    *retrieval.Scorer
	selector  *retrieval.Selector
	traverser *retrieval.Traverser
	prompts   prompts.Library
	costs     *cost.CostCalculator
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Dependencies injects pre-built collaborators. Any nil field is
// constructed from the configuration instead.
type Dependencies struct {
	Embedder embedder.Client
	Index    index.Index
	LLM      llm.Client
	Cache    cache.Cache
	Logger   *slog.Logger
}

// New creates a client from a validated configuration. Configuration
// violations surface here and nowhere else; query paths assume a sane
// setup.
func New(ctx context.Context, cfg *config.Config, deps *Dependencies) (*Client, error) {
	if cfg == nil {
		return nil, &types.ConfigurationError{Field: "config", Reason: "must not be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps == nil {
		deps = &Dependencies{}
	}

	log := deps.Logger
	if log == nil {
		log = logger.New(cfg.Log.Level, cfg.Log.Format)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	table, err := loadWeightTable(cfg)
	if err != nil {
		return nil, err
	}
	events := ontology.NewEventSet(cfg.Ontology.EventClasses)

	emb := deps.Embedder
	if emb == nil {
		emb, err = buildEmbedder(cfg, log)
		if err != nil {
			return nil, err
		}
	}

	embCache, err := buildCache(cfg, deps.Cache)
	if err != nil {
		emb.Close()
		return nil, err
	}

	extIndex, ownIndex, err := buildIndex(ctx, cfg, deps.Index, emb.Dimensions())
	if err != nil {
		emb.Close()
		if embCache != nil {
			embCache.Close()
		}
		return nil, err
	}

	llmClient, err := buildLLM(cfg, deps.LLM, log)
	if err != nil {
		emb.Close()
		if embCache != nil {
			embCache.Close()
		}
		if ownIndex {
			extIndex.Close()
		}
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		embedder: emb,
		llm:      llmClient,
		cache:    embCache,
		extIndex: extIndex,
		ownIndex: ownIndex,
		table:    table,
		events:   events,
		scorer: retrieval.NewScorer(&retrieval.ScoringConfig{
			VectorWeight:       cfg.Retrieval.VectorWeight,
			RelationshipWeight: cfg.Retrieval.RelationshipWeight,
			ImportanceWeight:   cfg.Retrieval.ImportanceWeight,
			PageRankDamping:    cfg.Retrieval.PageRankDamping,
			PageRankIterations: cfg.Retrieval.PageRankIterations,
		}, log),
		selector:  retrieval.NewSelector(log),
		traverser: retrieval.NewTraverser(table, events, log),
		prompts:   prompts.NewLibrary(),
		costs:     cost.NewCostCalculator(),
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}

	return c, nil
}

func loadWeightTable(cfg *config.Config) (*ontology.WeightTable, error) {
	if cfg.Ontology.TablePath == "" {
		return ontology.DefaultTable(), nil
	}
	table, err := ontology.LoadTable(cfg.Ontology.TablePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load weight table: %w", err)
	}
	return table, nil
}

func buildEmbedder(cfg *config.Config, log *slog.Logger) (embedder.Client, error) {
	base := embedder.Config{
		Model:      cfg.Embedding.Model,
		BatchSize:  cfg.Embedding.BatchSize,
		Dimensions: cfg.Embedding.Dimensions,
		BaseURL:    cfg.Embedding.BaseURL,
	}

	var client embedder.Client
	switch cfg.Embedding.Provider {
	case "openai":
		if cfg.Embedding.APIKey == "" {
			return nil, &types.ConfigurationError{Field: "embedding.api_key", Reason: "required for the openai provider"}
		}
		client = embedder.NewOpenAIEmbedder(cfg.Embedding.APIKey, base)
	case "local":
		client = embedder.NewLocalEmbedder(&embedder.LocalConfig{Config: &base})
	default:
		// Validate() already rejected anything else.
		return nil, &types.ConfigurationError{Field: "embedding.provider", Reason: "unknown provider"}
	}

	return embedder.NewBreaker(client, "embedder", log), nil
}

func buildCache(cfg *config.Config, injected cache.Cache) (*cache.EmbeddingCache, error) {
	ttl, err := parseCacheTTL(cfg.Embedding.CacheTTL)
	if err != nil {
		return nil, err
	}

	if injected != nil {
		return cache.NewEmbeddingCache(injected, cfg.Embedding.Model, ttl), nil
	}
	if ttl == 0 {
		return nil, nil
	}

	inner, err := cache.NewBadgerCache(filepath.Join(cfg.Storage.DataDir, "embedding-cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	return cache.NewEmbeddingCache(inner, cfg.Embedding.Model, ttl), nil
}

func parseCacheTTL(value string) (time.Duration, error) {
	if value == "" || value == "0" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(value)
	if err != nil {
		return 0, &types.ConfigurationError{Field: "embedding.cache_ttl", Reason: err.Error()}
	}
	if ttl < 0 {
		return 0, &types.ConfigurationError{Field: "embedding.cache_ttl", Reason: "must not be negative"}
	}
	return ttl, nil
}

// buildIndex returns the shared index handle, or nil for the memory
// provider, which gets a fresh index on every build so the swap stays
// atomic.
func buildIndex(ctx context.Context, cfg *config.Config, injected index.Index, dims int) (index.Index, bool, error) {
	if injected != nil {
		return injected, false, nil
	}
	if cfg.Embedding.Dimensions > 0 {
		dims = cfg.Embedding.Dimensions
	}

	switch cfg.Index.Provider {
	case "memory":
		return nil, false, nil
	case "neo4j":
		idx, err := index.NewNeo4jIndex(ctx, cfg.Index.URI, cfg.Index.Username, cfg.Index.Password, cfg.Index.Database, dims)
		if err != nil {
			return nil, false, fmt.Errorf("failed to connect vector index: %w", err)
		}
		return idx, true, nil
	case "pgvector":
		idx, err := index.NewPgvectorIndex(ctx, cfg.Index.DSN, dims)
		if err != nil {
			return nil, false, fmt.Errorf("failed to connect vector index: %w", err)
		}
		return idx, true, nil
	default:
		return nil, false, &types.ConfigurationError{Field: "index.provider", Reason: "unknown provider"}
	}
}

func buildLLM(cfg *config.Config, injected llm.Client, log *slog.Logger) (llm.Client, error) {
	if injected != nil {
		return injected, nil
	}
	switch cfg.LLM.Provider {
	case "", "none":
		return nil, nil
	}
	if cfg.LLM.APIKey == "" {
		return nil, &types.ConfigurationError{Field: "llm.api_key", Reason: "required for the openai provider"}
	}

	temperature := cfg.LLM.Temperature
	maxTokens := cfg.LLM.MaxTokens
	base := llm.NewOpenAIClient(cfg.LLM.APIKey, llm.Config{
		Model:       cfg.LLM.Model,
		SmallModel:  cfg.LLM.SmallModel,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		BaseURL:     cfg.LLM.BaseURL,
	})

	var client llm.Client = llm.NewBreaker(base, "llm", log)

	tracker, err := llm.NewTokenTracker(filepath.Join(cfg.Storage.DataDir, "token_usage.json"))
	if err != nil {
		log.Warn("token tracking disabled", "error", err)
		return client, nil
	}
	return llm.NewTrackingClient(client, tracker), nil
}

// activeBuild returns the current build or nil before the first rebuild.
func (c *Client) activeBuild() *build {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// swap installs a new build. In-flight queries finish on the old one.
func (c *Client) swap(b *build) {
	c.mu.Lock()
	c.current = b
	c.mu.Unlock()
}

// Save persists the active build to a DuckDB snapshot file.
func (c *Client) Save(ctx context.Context, path string) error {
	bld := c.activeBuild()
	if bld == nil {
		return types.ErrNoActiveBuild
	}

	w, err := graph.NewSnapshotWriter(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer w.Close()

	if err := w.Write(ctx, bld.store, bld.meta); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	c.logger.Info("snapshot saved",
		"path", path,
		"snapshot_id", bld.meta.ID,
		"documents", bld.store.Len(),
		"edges", bld.store.EdgeCount())
	return nil
}

// Load restores a build from a DuckDB snapshot file, repopulates the
// vector index from the persisted embeddings and swaps the build in.
func (c *Client) Load(ctx context.Context, path string) error {
	r, err := graph.NewSnapshotReader(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer r.Close()

	store, meta, err := r.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	idx := c.extIndex
	if idx == nil {
		idx = index.NewMemoryIndex()
	}
	if err := idx.Upsert(ctx, store.Documents()); err != nil {
		return fmt.Errorf("failed to restore index: %w", err)
	}

	c.swap(&build{store: store, index: idx, meta: meta})
	c.logger.Info("snapshot loaded",
		"path", path,
		"snapshot_id", meta.ID,
		"documents", store.Len(),
		"edges", store.EdgeCount())
	return nil
}

// Stats reports the currently active build. Before the first build it
// returns zero counts rather than an error so health surfaces stay green.
func (c *Client) Stats(ctx context.Context) (types.GraphStats, error) {
	bld := c.activeBuild()
	if bld == nil {
		return types.GraphStats{}, nil
	}

	size, err := bld.index.Len(ctx)
	if err != nil {
		return types.GraphStats{}, fmt.Errorf("failed to count index: %w", err)
	}

	return types.GraphStats{
		SnapshotID: bld.meta.ID,
		Documents:  bld.store.Len(),
		Edges:      bld.store.EdgeCount(),
		IndexSize:  size,
		BuiltAt:    bld.meta.BuiltAt,
	}, nil
}

// Close closes all connections and cleans up resources.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if c.llm != nil {
		errs = append(errs, c.llm.Close())
	}
	if c.embedder != nil {
		errs = append(errs, c.embedder.Close())
	}
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	if c.ownIndex && c.extIndex != nil {
		errs = append(errs, c.extIndex.Close())
	}
	return errors.Join(errs...)
}

// newSnapshotMeta stamps a fresh build.
func newSnapshotMeta() graph.SnapshotMeta {
	return graph.SnapshotMeta{
		ID:      uuid.New().String(),
		BuiltAt: time.Now().UTC(),
	}
}
