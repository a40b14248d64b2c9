package reliquary

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/go-reliquary/pkg/index"
	"github.com/soundprediction/go-reliquary/pkg/rdf"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// embedConcurrency bounds the number of embedding batches in flight during
// a rebuild.
const embedConcurrency = 4

// Rebuild compiles an RDF source into a fresh build: parse triples into
// documents and edges, embed every document text, populate the vector
// index, then swap the build in. Queries keep running against the old
// build until the swap; a failed rebuild leaves it untouched.
func (c *Client) Rebuild(ctx context.Context, source rdf.Source) (*types.BuildStats, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "reliquary.rebuild")
	defer span.End()
	span.SetAttributes(attribute.String("source", source.Name()))

	builder := rdf.NewBuilder(c.table, c.logger)
	store, stats, err := builder.Build(ctx, source)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}

	embedded, err := c.embedDocuments(ctx, store.Documents())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}

	idx := c.extIndex
	if idx == nil {
		idx = index.NewMemoryIndex()
	}
	if err := idx.Upsert(ctx, store.Documents()); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to index documents: %w", err)
	}

	meta := newSnapshotMeta()
	c.swap(&build{store: store, index: idx, meta: meta})

	stats.SnapshotID = meta.ID
	stats.Embedded = embedded
	stats.BuiltAt = meta.BuiltAt
	stats.Took = time.Since(start)

	span.SetAttributes(
		attribute.Int("documents", stats.Documents),
		attribute.Int("edges", stats.Edges),
	)
	c.logger.Info("graph rebuilt",
		"snapshot_id", stats.SnapshotID,
		"source", source.Name(),
		"documents", stats.Documents,
		"edges", stats.Edges,
		"dropped_edges", stats.DroppedEdges,
		"embedded", stats.Embedded,
		"took", stats.Took)
	return &stats, nil
}

// embedDocuments fills in the Embedding field of every document, batched
// through the provider with bounded concurrency. The documents are not yet
// visible to queries, so the writes need no locking.
func (c *Client) embedDocuments(ctx context.Context, docs []*types.EntityDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	batchSize := c.cfg.Embedding.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(embedConcurrency)

	for begin := 0; begin < len(docs); begin += batchSize {
		batch := docs[begin:min(begin+batchSize, len(docs))]
		eg.Go(func() error {
			texts := make([]string, len(batch))
			for i, doc := range batch {
				texts[i] = doc.Text
			}
			vectors, err := c.embedder.Embed(ectx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedding count mismatch: got %d want %d", len(vectors), len(batch))
			}
			for i, doc := range batch {
				doc.Embedding = vectors[i]
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	embedded := 0
	for _, doc := range docs {
		if len(doc.Embedding) > 0 {
			embedded++
		}
	}
	return embedded, nil
}
