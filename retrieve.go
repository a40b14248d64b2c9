package reliquary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/soundprediction/go-reliquary/pkg/llm"
	"github.com/soundprediction/go-reliquary/pkg/prompts"
	"github.com/soundprediction/go-reliquary/pkg/retrieval"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// RetrieveOptions override the configured retrieval parameters for one
// request. Zero or nil fields keep the configured values.
type RetrieveOptions struct {
	// TopN is the vector candidate pool size.
	TopN int
	// K is the number of entities to select.
	K int
	// DiversityWeight adjusts the redundancy penalty, clamped to [0, 1].
	DiversityWeight *float64
	// Depth bounds the context traversal; 0 disables expansion.
	Depth *int
	// AnalyzeQuery toggles the focus-entity analysis call.
	AnalyzeQuery *bool
}

type retrieveParams struct {
	topN            int
	k               int
	depth           int
	diversityWeight float64
	analyze         bool
}

func (c *Client) resolveOptions(opts *RetrieveOptions) retrieveParams {
	p := retrieveParams{
		topN:            c.cfg.Retrieval.TopN,
		k:               c.cfg.Retrieval.K,
		depth:           c.cfg.Retrieval.Depth,
		diversityWeight: c.cfg.Retrieval.DiversityWeight,
		analyze:         c.cfg.Retrieval.AnalyzeQueries,
	}
	if opts == nil {
		return p
	}
	if opts.TopN > 0 {
		p.topN = opts.TopN
	}
	if opts.K > 0 {
		p.k = opts.K
	}
	if opts.Depth != nil && *opts.Depth >= 0 {
		p.depth = *opts.Depth
	}
	if opts.DiversityWeight != nil {
		dw := *opts.DiversityWeight
		if dw < 0 {
			dw = 0
		}
		if dw > 1 {
			dw = 1
		}
		p.diversityWeight = dw
	}
	if opts.AnalyzeQuery != nil {
		p.analyze = *opts.AnalyzeQuery
	}
	if p.topN < p.k {
		p.topN = p.k
	}
	return p
}

// Retrieve runs the full pipeline for one query: embed, vector search,
// candidate resolution, graph-aware scoring, diversity-penalized selection
// and context traversal. The result is deterministic for a fixed build and
// fixed parameters. An empty candidate pool yields an empty result, not an
// error.
func (c *Client) Retrieve(ctx context.Context, query string, opts *RetrieveOptions) (*types.RetrievalResult, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, types.ContextKeyRequestID, requestID)
	ctx = context.WithValue(ctx, types.ContextKeyQuery, query)

	ctx, span := c.tracer.Start(ctx, "reliquary.retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	bld := c.activeBuild()
	if bld == nil {
		return nil, types.ErrNoActiveBuild
	}
	params := c.resolveOptions(opts)

	vec, err := c.embedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		c.logger.ErrorContext(ctx, "query embedding failed", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := bld.index.Search(ctx, vec, params.topN)
	if err != nil {
		span.RecordError(err)
		c.logger.ErrorContext(ctx, "vector search failed", "error", err)
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	candidates := make([]retrieval.Candidate, 0, len(hits))
	for _, hit := range hits {
		if !bld.store.Has(hit.ID) {
			c.logger.WarnContext(ctx, "dropping unknown candidate", "id", hit.ID)
			continue
		}
		candidates = append(candidates, retrieval.Candidate{ID: hit.ID, Similarity: hit.Similarity})
	}

	scored := c.scorer.Score(bld.store, candidates)
	selected := c.selector.Select(bld.store, scored, params.k, params.diversityWeight)

	blocks := make([]types.ContextBlock, 0, len(selected))
	for _, sel := range selected {
		block, err := c.traverser.Expand(bld.store, sel.ID, params.depth)
		if err != nil {
			c.logger.WarnContext(ctx, "context expansion failed", "id", sel.ID, "error", err)
			continue
		}
		blocks = append(blocks, block)
	}

	result := &types.RetrievalResult{
		Query:     query,
		Selected:  selected,
		Blocks:    blocks,
		Context:   assembleContext(blocks),
		Took:      time.Since(start),
		RequestID: requestID,
	}
	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("selected", len(selected)),
	)

	if params.analyze {
		result.Focus = c.analyzeQuery(ctx, query, bld)
	}

	c.logger.DebugContext(ctx, "retrieval complete",
		"candidates", len(candidates),
		"selected", len(selected),
		"took", result.Took)
	return result, nil
}

// embedQuery embeds the query text, consulting the embedding cache when one
// is configured. Cache failures fall through to the provider.
func (c *Client) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if c.cache != nil {
		if vec, err := c.cache.Vector(query); err == nil {
			return vec, nil
		}
	}

	vec, err := c.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.StoreVector(query, vec); err != nil {
			c.logger.WarnContext(ctx, "failed to cache query embedding", "error", err)
		}
	}
	return vec, nil
}

// analyzeQuery asks the small model which entities the question names and
// keeps the ones present in the build. Best effort: any failure logs a
// warning and returns nothing, never failing the retrieval.
func (c *Client) analyzeQuery(ctx context.Context, query string, bld *build) []string {
	if c.llm == nil {
		return nil
	}

	messages, err := c.prompts.Analyze().FocusEntities().Call(map[string]interface{}{
		"question": query,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "query analysis prompt failed", "error", err)
		return nil
	}

	raw, err := c.llm.ChatWithStructuredOutput(ctx, messages, nil)
	if err != nil {
		c.logger.WarnContext(ctx, "query analysis call failed", "error", err)
		return nil
	}

	var parsed prompts.FocusEntities
	if err := llm.ParseStructured(raw, &parsed); err != nil {
		c.logger.WarnContext(ctx, "query analysis parse failed", "error", err)
		return nil
	}

	matched := matchLabels(bld, parsed.Entities)
	if len(matched) > 0 {
		c.logger.InfoContext(ctx, "query focus entities", "labels", matched)
	}
	return matched
}

// matchLabels resolves extracted entity names against build labels,
// case-insensitively, preserving extraction order and store casing.
func matchLabels(bld *build, names []string) []string {
	if len(names) == 0 {
		return nil
	}

	byLabel := make(map[string]string)
	for _, doc := range bld.store.Documents() {
		key := strings.ToLower(doc.Label)
		if _, ok := byLabel[key]; !ok && key != "" {
			byLabel[key] = doc.Label
		}
	}

	var matched []string
	seen := make(map[string]struct{})
	for _, name := range names {
		label, ok := byLabel[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		matched = append(matched, label)
	}
	return matched
}

// assembleContext renders the blocks as paragraphs, one per selected
// entity, in selection order.
func assembleContext(blocks []types.ContextBlock) string {
	var b strings.Builder
	for i, block := range blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.Join(block.Lines, " "))
	}
	return b.String()
}
