package index

import (
	"context"
	"sort"
	"sync"

	"github.com/soundprediction/go-reliquary/pkg/types"
	"github.com/soundprediction/go-reliquary/pkg/utils"
)

// MemoryIndex is a brute-force cosine index held in process. Exact rather
// than approximate: for graphs in the tens of thousands of entities a linear
// scan is faster than any network round trip would be.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[string][]float32)}
}

// Upsert indexes the documents that carry embeddings; documents without one
// are skipped.
func (m *MemoryIndex) Upsert(ctx context.Context, docs []*types.EntityDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		vec := make([]float32, len(doc.Embedding))
		copy(vec, doc.Embedding)
		m.vectors[doc.ID] = vec
	}
	return nil
}

// Search scans all vectors and returns the top n by cosine similarity.
// Equal similarities order by id, so results are stable across runs.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, n int) ([]Hit, error) {
	if n <= 0 || len(vector) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.vectors))
	for id, vec := range m.vectors {
		hits = append(hits, Hit{ID: id, Similarity: utils.CosineSimilarity(vector, vec)})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > n {
		hits = hits[:n]
	}
	return hits, nil
}

// Len reports the number of indexed vectors.
func (m *MemoryIndex) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors), nil
}

// Close is a no-op for the in-memory index.
func (m *MemoryIndex) Close() error {
	return nil
}
