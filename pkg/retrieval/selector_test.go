package retrieval

import (
	"testing"

	"github.com/soundprediction/go-reliquary/pkg/graph"
	"github.com/soundprediction/go-reliquary/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectedIDs(selected []types.SelectedEntity) []string {
	ids := make([]string, len(selected))
	for i, s := range selected {
		ids[i] = s.ID
	}
	return ids
}

func TestSelectScenarioTopTwo(t *testing.T) {
	store := scenarioStore(t)
	scorer := NewScorer(nil, nil)
	selector := NewSelector(nil)

	scored := scorer.Score(store, scenarioCandidates())

	selected := selector.Select(store, scored, 2, 0)
	require.Len(t, selected, 2)

	// The top-2 window is church and panel; donor stays out even though it
	// is topically related.
	assert.ElementsMatch(t, []string{"church", "panel"}, selectedIDs(selected))
	assert.NotContains(t, selectedIDs(selected), "donor")

	// Raising k to 3 lets donor in.
	all := selector.Select(store, scored, 3, 0)
	assert.Contains(t, selectedIDs(all), "donor")

	assert.Equal(t, 1, selected[0].Rank)
	assert.Equal(t, 2, selected[1].Rank)
}

func TestSelectZeroDiversityEqualsTopK(t *testing.T) {
	store := scenarioStore(t)
	scorer := NewScorer(nil, nil)
	selector := NewSelector(nil)

	scored := scorer.Score(store, scenarioCandidates())
	selected := selector.Select(store, scored, 2, 0)

	// Plain top-k by combined score, same order as the scored slice.
	require.Len(t, selected, 2)
	assert.Equal(t, scored[0].ID, selected[0].ID)
	assert.Equal(t, scored[1].ID, selected[1].ID)
	// With no penalty the effective score is the base score.
	assert.InDelta(t, scored[0].Score, selected[0].Effective, 1e-9)
	assert.InDelta(t, scored[1].Score, selected[1].Effective, 1e-9)
}

func TestSelectKBoundary(t *testing.T) {
	store := scenarioStore(t)
	scorer := NewScorer(nil, nil)
	selector := NewSelector(nil)

	scored := scorer.Score(store, scenarioCandidates())

	// A pool smaller than k returns the whole pool, ordering intact.
	selected := selector.Select(store, scored, 10, 0)
	require.Len(t, selected, 3)
	assert.Equal(t, selectedIDs(selected), []string{scored[0].ID, scored[1].ID, scored[2].ID})

	assert.Nil(t, selector.Select(store, scored, 0, 0))
	assert.Nil(t, selector.Select(store, nil, 5, 0))
}

func TestSelectDiversityPenaltySuppressesNearDuplicate(t *testing.T) {
	s := graph.NewStore()
	s.AddDocument(&types.EntityDocument{ID: "altar_a", Text: "Altar A.", Embedding: []float32{1, 0}})
	s.AddDocument(&types.EntityDocument{ID: "altar_b", Text: "Altar B, a close copy.", Embedding: []float32{1, 0}})
	s.AddDocument(&types.EntityDocument{ID: "chapel", Text: "A chapel.", Embedding: []float32{0, 1}})

	scored := []types.ScoredCandidate{
		{ID: "altar_a", Similarity: 0.9, Score: 0.9},
		{ID: "altar_b", Similarity: 0.85, Score: 0.85},
		{ID: "chapel", Similarity: 0.5, Score: 0.5},
	}
	selector := NewSelector(nil)

	plain := selector.Select(s, scored, 2, 0)
	assert.Equal(t, []string{"altar_a", "altar_b"}, selectedIDs(plain))

	// altar_b is identical to the already-picked altar_a: its effective score
	// drops to 0.85-0.5*1=0.35, and the orthogonal chapel wins the round.
	diverse := selector.Select(s, scored, 2, 0.5)
	assert.Equal(t, []string{"altar_a", "chapel"}, selectedIDs(diverse))
	assert.InDelta(t, 0.5, diverse[1].Effective, 1e-9)

	// The base combined scores are untouched by the penalty.
	assert.InDelta(t, 0.85, scored[1].Score, 1e-9)
}

func TestSelectTieBreaksOnID(t *testing.T) {
	s := graph.NewStore()
	s.AddDocument(&types.EntityDocument{ID: "b_side", Text: "B."})
	s.AddDocument(&types.EntityDocument{ID: "a_side", Text: "A."})

	scored := []types.ScoredCandidate{
		{ID: "b_side", Score: 0.7},
		{ID: "a_side", Score: 0.7},
	}
	selector := NewSelector(nil)

	selected := selector.Select(s, scored, 2, 0)
	assert.Equal(t, []string{"a_side", "b_side"}, selectedIDs(selected))
}

func TestSelectTieBreaksOnRawSimilarityFirst(t *testing.T) {
	s := graph.NewStore()
	s.AddDocument(&types.EntityDocument{ID: "a_side", Text: "A."})
	s.AddDocument(&types.EntityDocument{ID: "b_side", Text: "B."})

	// Equal combined scores but b_side carried the stronger raw vector hit,
	// so it outranks the lexicographically smaller id.
	scored := []types.ScoredCandidate{
		{ID: "a_side", Similarity: 0.70, Score: 0.7},
		{ID: "b_side", Similarity: 0.95, Score: 0.7},
	}
	selector := NewSelector(nil)

	selected := selector.Select(s, scored, 2, 0)
	assert.Equal(t, []string{"b_side", "a_side"}, selectedIDs(selected))
}

func TestSelectMissingEmbeddingContributesZeroSimilarity(t *testing.T) {
	s := graph.NewStore()
	s.AddDocument(&types.EntityDocument{ID: "with_vec", Text: "V.", Embedding: []float32{1, 0}})
	s.AddDocument(&types.EntityDocument{ID: "no_vec", Text: "N."})
	s.AddDocument(&types.EntityDocument{ID: "also_vec", Text: "A.", Embedding: []float32{1, 0}})

	scored := []types.ScoredCandidate{
		{ID: "with_vec", Score: 0.9},
		{ID: "also_vec", Score: 0.8},
		{ID: "no_vec", Score: 0.75},
	}
	selector := NewSelector(nil)

	// With a heavy penalty the duplicate vector drops below the embedding-less
	// candidate, which pays no penalty at all.
	selected := selector.Select(s, scored, 3, 0.9)
	assert.Equal(t, []string{"with_vec", "no_vec", "also_vec"}, selectedIDs(selected))
}

func TestSelectDeterministic(t *testing.T) {
	store := scenarioStore(t)
	scorer := NewScorer(nil, nil)
	selector := NewSelector(nil)

	scored := scorer.Score(store, scenarioCandidates())
	first := selector.Select(store, scored, 2, 0.3)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, selector.Select(store, scored, 2, 0.3))
	}
}
