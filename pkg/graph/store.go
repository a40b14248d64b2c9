// Package graph holds the in-memory entity graph a build produces: a directed
// multigraph of entity documents with weighted, kind-labeled edges. A store is
// mutated by exactly one build goroutine and read-only afterwards; the engine
// swaps whole stores rather than editing a live one.
package graph

import (
	"github.com/soundprediction/go-reliquary/pkg/types"
)

type edgeKey struct {
	source string
	target string
	kind   string
}

// Store is the entity graph. Forward and reverse adjacency are kept so both
// directions resolve without scans.
type Store struct {
	docs  map[string]*types.EntityDocument
	out   map[string][]types.Edge
	in    map[string][]types.Edge
	seen  map[edgeKey]struct{}
	order []string
	edges int
}

// NewStore returns an empty graph.
func NewStore() *Store {
	return &Store{
		docs: make(map[string]*types.EntityDocument),
		out:  make(map[string][]types.Edge),
		in:   make(map[string][]types.Edge),
		seen: make(map[edgeKey]struct{}),
	}
}

// AddDocument registers an entity. Re-adding an id replaces the document and
// keeps its edges; builds use this to refine texts without rewiring.
func (s *Store) AddDocument(doc *types.EntityDocument) {
	if doc == nil || doc.ID == "" {
		return
	}
	if _, exists := s.docs[doc.ID]; !exists {
		s.order = append(s.order, doc.ID)
	}
	s.docs[doc.ID] = doc
}

// AddEdge inserts a directed edge. Insertion is idempotent on
// (source, target, kind): an exact duplicate is a no-op and the weight stays
// what the first insert set. Edges naming an unknown endpoint return a
// DanglingReferenceError and change nothing.
func (s *Store) AddEdge(source, target, kind string, weight float64) error {
	if _, ok := s.docs[source]; !ok {
		return &types.DanglingReferenceError{Source: source, Target: target, Kind: kind, Missing: source}
	}
	if _, ok := s.docs[target]; !ok {
		return &types.DanglingReferenceError{Source: source, Target: target, Kind: kind, Missing: target}
	}
	key := edgeKey{source: source, target: target, kind: kind}
	if _, dup := s.seen[key]; dup {
		return nil
	}
	s.seen[key] = struct{}{}

	edge := types.Edge{Source: source, Target: target, Kind: kind, Weight: weight}
	s.out[source] = append(s.out[source], edge)
	s.in[target] = append(s.in[target], edge)
	s.edges++
	return nil
}

// Get returns the document for an id.
func (s *Store) Get(id string) (*types.EntityDocument, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, &types.NotFoundError{ID: id}
	}
	return doc, nil
}

// Has reports whether the graph contains the id.
func (s *Store) Has(id string) bool {
	_, ok := s.docs[id]
	return ok
}

// Neighbors returns the documents adjacent to id along the given direction,
// one entry per connecting edge. DirectionBoth lists outgoing edges first,
// then incoming; within each list, insertion order holds, so iteration is
// deterministic for a given build.
func (s *Store) Neighbors(id string, direction types.Direction) ([]types.Neighbor, error) {
	if _, ok := s.docs[id]; !ok {
		return nil, &types.NotFoundError{ID: id}
	}
	var neighbors []types.Neighbor
	if direction == types.DirectionOut || direction == types.DirectionBoth {
		for _, e := range s.out[id] {
			neighbors = append(neighbors, types.Neighbor{
				Document: s.docs[e.Target],
				Edge:     e,
				Outgoing: true,
			})
		}
	}
	if direction == types.DirectionIn || direction == types.DirectionBoth {
		for _, e := range s.in[id] {
			neighbors = append(neighbors, types.Neighbor{
				Document: s.docs[e.Source],
				Edge:     e,
				Outgoing: false,
			})
		}
	}
	return neighbors, nil
}

// Documents returns every document in insertion order.
func (s *Store) Documents() []*types.EntityDocument {
	docs := make([]*types.EntityDocument, 0, len(s.order))
	for _, id := range s.order {
		docs = append(docs, s.docs[id])
	}
	return docs
}

// Edges returns every edge, grouped by source in insertion order.
func (s *Store) Edges() []types.Edge {
	edges := make([]types.Edge, 0, s.edges)
	for _, id := range s.order {
		edges = append(edges, s.out[id]...)
	}
	return edges
}

// Len returns the number of documents.
func (s *Store) Len() int { return len(s.docs) }

// EdgeCount returns the number of distinct edges.
func (s *Store) EdgeCount() int { return s.edges }
