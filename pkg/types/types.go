package types

import (
	"time"
)

// EntityDocument is one knowledge-graph entity prepared as a retrieval unit.
// Text is the natural-language rendering produced at build time; the embedding
// is computed over exactly that text.
type EntityDocument struct {
	ID        string            `json:"id"`
	Label     string            `json:"label"`
	Types     []string          `json:"types,omitempty"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PrimaryType returns the first ontology class of the entity, or "" when the
// source graph carried no type assertion.
func (d *EntityDocument) PrimaryType() string {
	if len(d.Types) == 0 {
		return ""
	}
	return d.Types[0]
}

// Edge is a directed, weighted relationship between two entities. Parallel
// edges with different kinds between the same pair are legal.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight"`
}

// Direction selects which adjacency a neighbor lookup walks.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// Neighbor pairs a neighboring document with the edge that reaches it.
// Outgoing reports whether the edge leaves the queried node, which decides
// how the relationship sentence is rendered.
type Neighbor struct {
	Document *EntityDocument `json:"document"`
	Edge     Edge            `json:"edge"`
	Outgoing bool            `json:"outgoing"`
}

// ScoredCandidate carries one candidate through the scoring pipeline.
// Similarity is the raw value reported by the vector index; the three
// component scores are batch-normalized to [0,1]; Score is their blend.
type ScoredCandidate struct {
	ID           string  `json:"id"`
	Similarity   float64 `json:"similarity"`
	Vector       float64 `json:"vector_score"`
	Relationship float64 `json:"relationship_score"`
	Importance   float64 `json:"importance_score"`
	Score        float64 `json:"score"`
}

// SelectedEntity is one pick of the subgraph selector. Effective is the
// score after the diversity penalty at the moment this entity was picked.
type SelectedEntity struct {
	ScoredCandidate
	Effective float64 `json:"effective_score"`
	Rank      int     `json:"rank"`
}

// ContextBlock is the traversal output for one selected entity: its own text
// followed by the rendered relationship sentences and neighbor texts reached
// within the hop budget.
type ContextBlock struct {
	Origin string   `json:"origin"`
	Label  string   `json:"label"`
	Lines  []string `json:"lines"`
}

// RetrievalResult is the assembled context for one query.
type RetrievalResult struct {
	Query     string           `json:"query"`
	Selected  []SelectedEntity `json:"selected"`
	Blocks    []ContextBlock   `json:"blocks"`
	Context   string           `json:"context"`
	Focus     []string         `json:"focus,omitempty"`
	Took      time.Duration    `json:"took"`
	RequestID string           `json:"request_id"`
}

// BuildStats summarizes one completed graph build.
type BuildStats struct {
	SnapshotID   string        `json:"snapshot_id"`
	Triples      int           `json:"triples"`
	Documents    int           `json:"documents"`
	Edges        int           `json:"edges"`
	DroppedEdges int           `json:"dropped_edges"`
	Embedded     int           `json:"embedded"`
	BuiltAt      time.Time     `json:"built_at"`
	Took         time.Duration `json:"took"`
}

// GraphStats reports the currently active build.
type GraphStats struct {
	SnapshotID string    `json:"snapshot_id"`
	Documents  int       `json:"documents"`
	Edges      int       `json:"edges"`
	IndexSize  int       `json:"index_size"`
	BuiltAt    time.Time `json:"built_at"`
}
