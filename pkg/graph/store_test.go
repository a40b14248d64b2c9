package graph

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/soundprediction/go-reliquary/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.AddDocument(&types.EntityDocument{ID: "church", Label: "Village Church", Types: []string{"E22_Human-Made_Object"}, Text: "Village Church. A late gothic church."})
	s.AddDocument(&types.EntityDocument{ID: "panel", Label: "Altar Panel", Types: []string{"E22_Human-Made_Object"}, Text: "Altar Panel. A painted panel."})
	s.AddDocument(&types.EntityDocument{ID: "donor", Label: "The Donor", Types: []string{"E21_Person"}, Text: "The Donor. A patrician donor."})
	s.AddDocument(&types.EntityDocument{ID: "village", Label: "Flechtingen", Types: []string{"E53_Place"}, Text: "Flechtingen. A village in the Altmark."})

	require.NoError(t, s.AddEdge("panel", "donor", "depicts", 0.8))
	require.NoError(t, s.AddEdge("church", "panel", "contains", 0.6))
	require.NoError(t, s.AddEdge("church", "village", "locatedIn", 0.5))
	return s
}

func TestStoreGet(t *testing.T) {
	s := testStore(t)

	doc, err := s.Get("church")
	require.NoError(t, err)
	assert.Equal(t, "Village Church", doc.Label)

	_, err = s.Get("cathedral")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	var nfe *types.NotFoundError
	require.True(t, errors.As(err, &nfe))
	assert.Equal(t, "cathedral", nfe.ID)
}

func TestAddEdgeIdempotent(t *testing.T) {
	s := testStore(t)
	require.Equal(t, 3, s.EdgeCount())

	// Exact duplicates are no-ops, even with a different weight.
	require.NoError(t, s.AddEdge("panel", "donor", "depicts", 0.8))
	require.NoError(t, s.AddEdge("panel", "donor", "depicts", 0.1))
	assert.Equal(t, 3, s.EdgeCount())

	neighbors, err := s.Neighbors("panel", types.DirectionOut)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.InDelta(t, 0.8, neighbors[0].Edge.Weight, 1e-9)

	// A different kind between the same endpoints is a new edge.
	require.NoError(t, s.AddEdge("panel", "donor", "P62_depicts", 0.8))
	assert.Equal(t, 4, s.EdgeCount())
}

func TestAddEdgeDanglingReference(t *testing.T) {
	s := testStore(t)

	err := s.AddEdge("church", "ghost", "contains", 0.6)
	require.Error(t, err)
	var dre *types.DanglingReferenceError
	require.True(t, errors.As(err, &dre))
	assert.Equal(t, "ghost", dre.Missing)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	err = s.AddEdge("ghost", "church", "contains", 0.6)
	require.True(t, errors.As(err, &dre))
	assert.Equal(t, "ghost", dre.Missing)

	// Nothing was inserted.
	assert.Equal(t, 3, s.EdgeCount())
}

func TestNeighborsDirections(t *testing.T) {
	s := testStore(t)

	out, err := s.Neighbors("church", types.DirectionOut)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "panel", out[0].Document.ID)
	assert.True(t, out[0].Outgoing)
	assert.Equal(t, "village", out[1].Document.ID)

	in, err := s.Neighbors("panel", types.DirectionIn)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "church", in[0].Document.ID)
	assert.False(t, in[0].Outgoing)
	assert.Equal(t, "contains", in[0].Edge.Kind)

	both, err := s.Neighbors("panel", types.DirectionBoth)
	require.NoError(t, err)
	require.Len(t, both, 2)
	// Outgoing edges list first.
	assert.Equal(t, "donor", both[0].Document.ID)
	assert.Equal(t, "church", both[1].Document.ID)

	_, err = s.Neighbors("ghost", types.DirectionBoth)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestNeighborsDeterministic(t *testing.T) {
	s := testStore(t)
	first, err := s.Neighbors("church", types.DirectionBoth)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := s.Neighbors("church", types.DirectionBoth)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestDocumentsInsertionOrder(t *testing.T) {
	s := testStore(t)
	docs := s.Documents()
	require.Len(t, docs, 4)
	assert.Equal(t, "church", docs[0].ID)
	assert.Equal(t, "village", docs[3].ID)

	// Re-adding an id refines the document without changing order or edges.
	s.AddDocument(&types.EntityDocument{ID: "panel", Label: "Altar Panel", Text: "Altar Panel. Refined rendering."})
	docs = s.Documents()
	assert.Equal(t, "panel", docs[1].ID)
	assert.Equal(t, "Altar Panel. Refined rendering.", docs[1].Text)
	assert.Equal(t, 3, s.EdgeCount())
	assert.Equal(t, 4, s.Len())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := testStore(t)
	church, err := s.Get("church")
	require.NoError(t, err)
	church.Embedding = []float32{0.1, 0.2, 0.3}
	church.Metadata = map[string]string{"region": "Altmark"}

	path := filepath.Join(t.TempDir(), "snapshot.duckdb")
	meta := SnapshotMeta{ID: "b2f1c9e4", BuiltAt: time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC)}

	writer, err := NewSnapshotWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.Write(context.Background(), s, meta))
	require.NoError(t, writer.Close())

	reader, err := NewSnapshotReader(path)
	require.NoError(t, err)
	defer reader.Close()

	restored, gotMeta, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, meta.ID, gotMeta.ID)
	assert.True(t, meta.BuiltAt.Equal(gotMeta.BuiltAt))

	assert.Equal(t, s.Len(), restored.Len())
	assert.Equal(t, s.EdgeCount(), restored.EdgeCount())

	doc, err := restored.Get("church")
	require.NoError(t, err)
	assert.Equal(t, "Village Church", doc.Label)
	assert.Equal(t, []string{"E22_Human-Made_Object"}, doc.Types)
	assert.Equal(t, "Altmark", doc.Metadata["region"])
	require.Len(t, doc.Embedding, 3)
	assert.InDelta(t, 0.2, float64(doc.Embedding[1]), 1e-6)

	neighbors, err := restored.Neighbors("church", types.DirectionOut)
	require.NoError(t, err)
	assert.Len(t, neighbors, 2)
}
