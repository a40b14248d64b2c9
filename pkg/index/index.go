// Package index provides the vector index backends that turn a query
// embedding into ranked candidate entities. The in-memory index serves
// embedded deployments and tests; the Neo4j and pgvector backends serve
// graphs too large to hold vectors in process.
package index

import (
	"context"

	"github.com/soundprediction/go-reliquary/pkg/types"
)

// Hit is one ranked match from a similarity search.
type Hit struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// Index is the vector index contract. Search returns up to n hits, most
// similar first, with deterministic ordering for equal similarities.
type Index interface {
	// Upsert indexes the documents' embeddings, replacing existing entries
	// with the same id.
	Upsert(ctx context.Context, docs []*types.EntityDocument) error

	// Search returns the n nearest documents to the query vector.
	Search(ctx context.Context, vector []float32, n int) ([]Hit, error)

	// Len reports the number of indexed vectors.
	Len(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
