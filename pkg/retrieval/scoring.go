// Package retrieval implements the query-time pipeline: graph-aware scoring
// of vector candidates, diversity-penalized subgraph selection, and
// event-gated context traversal. The stages are strictly sequential per
// query and operate on a read-only store, so any number of queries can run
// concurrently against the same build.
package retrieval

import (
	"log/slog"
	"sort"

	"github.com/soundprediction/go-reliquary/pkg/graph"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// ScoringConfig weights the three evidence components and bounds the
// importance propagation. The component weights must sum to 1.0 so scores
// stay comparable across queries; configuration validation enforces that at
// startup.
type ScoringConfig struct {
	VectorWeight       float64
	RelationshipWeight float64
	ImportanceWeight   float64
	PageRankDamping    float64
	PageRankIterations int
}

// DefaultScoringConfig favors vector evidence while keeping the graph signal
// strong enough to promote connected candidates.
func DefaultScoringConfig() *ScoringConfig {
	return &ScoringConfig{
		VectorWeight:       0.5,
		RelationshipWeight: 0.3,
		ImportanceWeight:   0.2,
		PageRankDamping:    0.85,
		PageRankIterations: 20,
	}
}

// Candidate is one vector-index hit resolved against the store.
type Candidate struct {
	ID         string
	Similarity float64
}

// Scorer computes combined relevance over a candidate batch.
type Scorer struct {
	config *ScoringConfig
	logger *slog.Logger
}

// NewScorer builds a scorer. A nil config takes the defaults.
func NewScorer(config *ScoringConfig, logger *slog.Logger) *Scorer {
	if config == nil {
		config = DefaultScoringConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{config: config, logger: logger}
}

// Score blends normalized vector similarity, batch-local relationship weight
// and personalized PageRank importance. An empty batch returns nil, not an
// error; a batch with no edges among its members reduces to pure vector
// ordering. The result is sorted by score descending, ties broken by id.
func (s *Scorer) Score(store *graph.Store, candidates []Candidate) []types.ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]string, len(candidates))
	inBatch := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
		inBatch[c.ID] = struct{}{}
	}

	vector := make([]float64, len(candidates))
	for i, c := range candidates {
		vector[i] = c.Similarity
	}

	// Relationship evidence counts only edges to other candidates in the
	// batch. That captures local coherence and bounds the cost to the batch
	// times average degree.
	relationship := make([]float64, len(candidates))
	for i, c := range candidates {
		neighbors, err := store.Neighbors(c.ID, types.DirectionBoth)
		if err != nil {
			continue
		}
		for _, nb := range neighbors {
			if nb.Document.ID == c.ID {
				continue
			}
			if _, ok := inBatch[nb.Document.ID]; ok {
				relationship[i] += nb.Edge.Weight
			}
		}
	}

	ranks := s.personalizedPageRank(store, ids)
	importance := make([]float64, len(candidates))
	for i, id := range ids {
		importance[i] = ranks[id]
	}

	normVector := minMaxNormalize(vector)
	normRelationship := minMaxNormalize(relationship)
	normImportance := minMaxNormalize(importance)

	scored := make([]types.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = types.ScoredCandidate{
			ID:           c.ID,
			Similarity:   c.Similarity,
			Vector:       normVector[i],
			Relationship: normRelationship[i],
			Importance:   normImportance[i],
			Score: s.config.VectorWeight*normVector[i] +
				s.config.RelationshipWeight*normRelationship[i] +
				s.config.ImportanceWeight*normImportance[i],
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	return scored
}

// minMaxNormalize scales values to [0,1]. A flat batch collapses without
// dividing by zero: all zeros stay zero, any other constant maps to the
// midpoint.
func minMaxNormalize(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]float64, len(values))
	if hi == lo {
		fill := 0.5
		if hi == 0 {
			fill = 0
		}
		for i := range out {
			out[i] = fill
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// personalizedPageRank runs a fixed number of power-iteration rounds over the
// locally induced subgraph: the seeds plus their immediate neighbors. The
// restart vector is uniform over the seeds; transition mass follows edge
// weights; mass on nodes without outgoing edges teleports back to the seeds.
// The round count is fixed rather than convergence-detected, which keeps
// query latency bounded by configuration alone. Nodes iterate in sorted
// order, so the result is deterministic for a given build.
func (s *Scorer) personalizedPageRank(store *graph.Store, seeds []string) map[string]float64 {
	local := make(map[string]struct{}, len(seeds)*4)
	for _, id := range seeds {
		if !store.Has(id) {
			continue
		}
		local[id] = struct{}{}
		neighbors, err := store.Neighbors(id, types.DirectionBoth)
		if err != nil {
			continue
		}
		for _, nb := range neighbors {
			local[nb.Document.ID] = struct{}{}
		}
	}
	if len(local) == 0 {
		return map[string]float64{}
	}

	nodes := make([]string, 0, len(local))
	for id := range local {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	index := make(map[string]int, len(nodes))
	for i, id := range nodes {
		index[id] = i
	}

	type arc struct {
		to     int
		weight float64
	}
	arcs := make([][]arc, len(nodes))
	outWeight := make([]float64, len(nodes))
	for i, id := range nodes {
		neighbors, err := store.Neighbors(id, types.DirectionOut)
		if err != nil {
			continue
		}
		for _, nb := range neighbors {
			j, ok := index[nb.Document.ID]
			if !ok {
				continue
			}
			arcs[i] = append(arcs[i], arc{to: j, weight: nb.Edge.Weight})
			outWeight[i] += nb.Edge.Weight
		}
	}

	restart := make([]float64, len(nodes))
	seedCount := 0
	for _, id := range seeds {
		if _, ok := index[id]; ok {
			seedCount++
		}
	}
	for _, id := range seeds {
		if i, ok := index[id]; ok {
			restart[i] = 1.0 / float64(seedCount)
		}
	}

	rank := make([]float64, len(nodes))
	copy(rank, restart)
	d := s.config.PageRankDamping
	for iter := 0; iter < s.config.PageRankIterations; iter++ {
		next := make([]float64, len(nodes))
		var dangling float64
		for i := range nodes {
			if outWeight[i] == 0 {
				dangling += rank[i]
				continue
			}
			share := rank[i] / outWeight[i]
			for _, a := range arcs[i] {
				next[a.to] += share * a.weight
			}
		}
		for i := range next {
			next[i] = (1-d)*restart[i] + d*(next[i]+dangling*restart[i])
		}
		rank = next
	}

	ranks := make(map[string]float64, len(seeds))
	for _, id := range seeds {
		if i, ok := index[id]; ok {
			ranks[id] = rank[i]
		}
	}
	return ranks
}
