package retrieval

import (
	"log/slog"
	"math"

	"github.com/soundprediction/go-reliquary/pkg/graph"
	"github.com/soundprediction/go-reliquary/pkg/types"
	"github.com/soundprediction/go-reliquary/pkg/utils"
)

// Selector picks k entities from a scored batch, suppressing near-duplicates
// relative to what has already been picked.
type Selector struct {
	logger *slog.Logger
}

// NewSelector builds a selector.
func NewSelector(logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{logger: logger}
}

// Select runs the greedy diversity-penalized pass. Each round recomputes
// effective scores as the base combined score minus diversityWeight times the
// maximum cosine similarity to the already-selected entities; the base scores
// themselves never change, so the penalty is judged against actual picks, not
// the static pool. With diversityWeight 0 this is plain top-k by combined
// score. Fewer than k candidates returns the whole pool. Ties break on the
// higher raw vector similarity, then the lexicographically smaller id.
// Candidates without embeddings contribute similarity 0 to the penalty term.
func (s *Selector) Select(store *graph.Store, scored []types.ScoredCandidate, k int, diversityWeight float64) []types.SelectedEntity {
	if len(scored) == 0 || k <= 0 {
		return nil
	}

	remaining := make([]types.ScoredCandidate, len(scored))
	copy(remaining, scored)

	embeddings := make(map[string][]float32, len(scored))
	for _, c := range scored {
		if doc, err := store.Get(c.ID); err == nil {
			embeddings[c.ID] = doc.Embedding
		}
	}

	limit := k
	if len(remaining) < limit {
		limit = len(remaining)
	}
	selected := make([]types.SelectedEntity, 0, limit)
	for len(selected) < k && len(remaining) > 0 {
		best := 0
		bestEff := math.Inf(-1)
		for i, c := range remaining {
			eff := c.Score
			if diversityWeight != 0 && len(selected) > 0 {
				maxSim := math.Inf(-1)
				for _, sel := range selected {
					sim := utils.CosineSimilarity(embeddings[c.ID], embeddings[sel.ID])
					if sim > maxSim {
						maxSim = sim
					}
				}
				eff -= diversityWeight * maxSim
			}
			if eff > bestEff || (eff == bestEff && tieBreak(c, remaining[best])) {
				best = i
				bestEff = eff
			}
		}
		pick := remaining[best]
		selected = append(selected, types.SelectedEntity{
			ScoredCandidate: pick,
			Effective:       bestEff,
			Rank:            len(selected) + 1,
		})
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return selected
}

// tieBreak orders candidates with equal effective scores: higher raw vector
// similarity wins, then the smaller id.
func tieBreak(a, b types.ScoredCandidate) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.ID < b.ID
}
