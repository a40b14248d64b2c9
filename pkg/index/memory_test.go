package index

import (
	"context"
	"testing"

	"github.com/soundprediction/go-reliquary/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex()
	err := idx.Upsert(context.Background(), []*types.EntityDocument{
		{ID: "church", Embedding: []float32{1, 0, 0}},
		{ID: "panel", Embedding: []float32{0.9, 0.1, 0}},
		{ID: "donor", Embedding: []float32{0, 1, 0}},
		{ID: "unembedded", Text: "no vector"},
	})
	require.NoError(t, err)
	return idx
}

func TestMemoryIndexRanking(t *testing.T) {
	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "church", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.Equal(t, "panel", hits[1].ID)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestMemoryIndexSkipsUnembedded(t *testing.T) {
	idx := seedIndex(t)

	n, err := idx.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	idx := seedIndex(t)

	require.NoError(t, idx.Upsert(context.Background(), []*types.EntityDocument{
		{ID: "donor", Embedding: []float32{1, 0, 0}},
	}))

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	// donor now ties church at similarity 1.0; id order breaks the tie.
	assert.Equal(t, "church", hits[0].ID)

	n, err := idx.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemoryIndexTieBreaksOnID(t *testing.T) {
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(context.Background(), []*types.EntityDocument{
		{ID: "b", Embedding: []float32{1, 0}},
		{ID: "a", Embedding: []float32{1, 0}},
	}))

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
}

func TestMemoryIndexDegenerateQueries(t *testing.T) {
	idx := seedIndex(t)

	hits, err := idx.Search(context.Background(), nil, 5)
	require.NoError(t, err)
	assert.Nil(t, hits)

	hits, err = idx.Search(context.Background(), []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Nil(t, hits)

	empty := NewMemoryIndex()
	hits, err = empty.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndexDeterministic(t *testing.T) {
	idx := seedIndex(t)

	first, err := idx.Search(context.Background(), []float32{0.7, 0.7, 0}, 3)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := idx.Search(context.Background(), []float32{0.7, 0.7, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
