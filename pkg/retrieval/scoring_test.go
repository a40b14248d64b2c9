package retrieval

import (
	"testing"

	"github.com/soundprediction/go-reliquary/pkg/graph"
	"github.com/soundprediction/go-reliquary/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioStore is the Church/Panel/Donor/Village graph used across the
// pipeline tests.
func scenarioStore(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.NewStore()
	s.AddDocument(&types.EntityDocument{ID: "church", Label: "Village Church", Types: []string{"E22_Human-Made_Object"}, Text: "Village Church. A late gothic village church.", Embedding: []float32{0.9, 0.1, 0.0}})
	s.AddDocument(&types.EntityDocument{ID: "panel", Label: "Altar Panel", Types: []string{"E22_Human-Made_Object"}, Text: "Altar Panel. A painted altar panel.", Embedding: []float32{0.8, 0.3, 0.1}})
	s.AddDocument(&types.EntityDocument{ID: "donor", Label: "The Donor", Types: []string{"E21_Person"}, Text: "The Donor. The patrician who endowed the altar.", Embedding: []float32{0.1, 0.9, 0.2}})
	s.AddDocument(&types.EntityDocument{ID: "village", Label: "Flechtingen", Types: []string{"E53_Place"}, Text: "Flechtingen. A village in the Altmark.", Embedding: []float32{0.2, 0.2, 0.9}})

	require.NoError(t, s.AddEdge("panel", "donor", "depicts", 0.8))
	require.NoError(t, s.AddEdge("church", "panel", "contains", 0.6))
	require.NoError(t, s.AddEdge("church", "village", "locatedIn", 0.5))
	return s
}

func scenarioCandidates() []Candidate {
	return []Candidate{
		{ID: "church", Similarity: 0.9},
		{ID: "panel", Similarity: 0.85},
		{ID: "donor", Similarity: 0.3},
	}
}

func TestScoreScenario(t *testing.T) {
	store := scenarioStore(t)
	scorer := NewScorer(nil, nil)

	scored := scorer.Score(store, scenarioCandidates())
	require.Len(t, scored, 3)

	byID := make(map[string]types.ScoredCandidate, 3)
	for _, c := range scored {
		byID[c.ID] = c
	}

	// Vector: min-max over {0.9, 0.85, 0.3}.
	assert.InDelta(t, 1.0, byID["church"].Vector, 1e-9)
	assert.InDelta(t, 0.55/0.6, byID["panel"].Vector, 1e-9)
	assert.InDelta(t, 0.0, byID["donor"].Vector, 1e-9)

	// Relationship: batch-local sums church=0.6, panel=1.4, donor=0.8,
	// min-max normalized.
	assert.InDelta(t, 0.0, byID["church"].Relationship, 1e-9)
	assert.InDelta(t, 1.0, byID["panel"].Relationship, 1e-9)
	assert.InDelta(t, 0.25, byID["donor"].Relationship, 1e-9)

	// Importance: donor is the sink of the depicts chain, church only ever
	// receives restart mass.
	assert.InDelta(t, 1.0, byID["donor"].Importance, 1e-9)
	assert.InDelta(t, 0.0, byID["church"].Importance, 1e-9)
	assert.Greater(t, byID["panel"].Importance, 0.0)
	assert.Less(t, byID["panel"].Importance, 1.0)

	// Panel is both vector-strong and the graph hub, so it leads; the
	// vector-only ranking would have put church first.
	assert.Equal(t, "panel", scored[0].ID)
	assert.Equal(t, "church", scored[1].ID)
	assert.Equal(t, "donor", scored[2].ID)
}

func TestScoreEmptyBatch(t *testing.T) {
	store := scenarioStore(t)
	scorer := NewScorer(nil, nil)

	assert.Nil(t, scorer.Score(store, nil))
	assert.Nil(t, scorer.Score(store, []Candidate{}))
}

func TestScoreNormalizationSafety(t *testing.T) {
	s := graph.NewStore()
	s.AddDocument(&types.EntityDocument{ID: "a", Text: "A."})
	s.AddDocument(&types.EntityDocument{ID: "b", Text: "B."})
	s.AddDocument(&types.EntityDocument{ID: "c", Text: "C."})

	scorer := NewScorer(nil, nil)
	scored := scorer.Score(s, []Candidate{
		{ID: "a", Similarity: 0.7},
		{ID: "b", Similarity: 0.7},
		{ID: "c", Similarity: 0.7},
	})
	require.Len(t, scored, 3)

	for _, c := range scored {
		// Equal similarities collapse to the midpoint, no division by zero.
		assert.InDelta(t, 0.5, c.Vector, 1e-9)
		// No edges at all: relationship evidence is zero, not midpoint.
		assert.InDelta(t, 0.0, c.Relationship, 1e-9)
		assert.False(t, c.Score != c.Score, "score must not be NaN")
		assert.InDelta(t, scored[0].Score, c.Score, 1e-9)
	}
	// Equal scores order by id.
	assert.Equal(t, []string{"a", "b", "c"}, []string{scored[0].ID, scored[1].ID, scored[2].ID})
}

func TestScoreNoEdgesReducesToVectorOrdering(t *testing.T) {
	s := graph.NewStore()
	s.AddDocument(&types.EntityDocument{ID: "x", Text: "X."})
	s.AddDocument(&types.EntityDocument{ID: "y", Text: "Y."})
	s.AddDocument(&types.EntityDocument{ID: "z", Text: "Z."})

	scorer := NewScorer(nil, nil)
	scored := scorer.Score(s, []Candidate{
		{ID: "z", Similarity: 0.2},
		{ID: "x", Similarity: 0.9},
		{ID: "y", Similarity: 0.5},
	})
	require.Len(t, scored, 3)
	assert.Equal(t, "x", scored[0].ID)
	assert.Equal(t, "y", scored[1].ID)
	assert.Equal(t, "z", scored[2].ID)
}

func TestScoreDeterministic(t *testing.T) {
	store := scenarioStore(t)
	scorer := NewScorer(nil, nil)

	first := scorer.Score(store, scenarioCandidates())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scorer.Score(store, scenarioCandidates()))
	}
}

func TestScoreUnknownCandidateStaysAtZeroGraphEvidence(t *testing.T) {
	store := scenarioStore(t)
	scorer := NewScorer(nil, nil)

	scored := scorer.Score(store, []Candidate{
		{ID: "church", Similarity: 0.9},
		{ID: "phantom", Similarity: 0.8},
	})
	require.Len(t, scored, 2)

	byID := make(map[string]types.ScoredCandidate, 2)
	for _, c := range scored {
		byID[c.ID] = c
	}
	assert.InDelta(t, 0.0, byID["phantom"].Relationship, 1e-9)
	assert.InDelta(t, 0.0, byID["phantom"].Importance, 1e-9)
}

func TestMinMaxNormalize(t *testing.T) {
	assert.Nil(t, minMaxNormalize(nil))

	out := minMaxNormalize([]float64{2, 4, 6})
	assert.InDelta(t, 0.0, out[0], 1e-9)
	assert.InDelta(t, 0.5, out[1], 1e-9)
	assert.InDelta(t, 1.0, out[2], 1e-9)

	flat := minMaxNormalize([]float64{3, 3, 3})
	for _, v := range flat {
		assert.InDelta(t, 0.5, v, 1e-9)
	}

	zeros := minMaxNormalize([]float64{0, 0})
	for _, v := range zeros {
		assert.InDelta(t, 0.0, v, 1e-9)
	}
}
