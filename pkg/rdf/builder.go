package rdf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	knakk "github.com/knakk/rdf"
	"github.com/soundprediction/go-reliquary/pkg/graph"
	"github.com/soundprediction/go-reliquary/pkg/ontology"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

const rdfTypeIRI = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// labelPredicates and descriptionPredicates are matched on the normalized
// local name, so both CRM and plain vocabularies hit them.
var labelPredicates = map[string]struct{}{
	"label":     {},
	"prefLabel": {},
	"name":      {},
	"title":     {},
}

var descriptionPredicates = map[string]struct{}{
	"P3_has_note": {},
	"comment":     {},
	"description": {},
	"note":        {},
	"abstract":    {},
}

// Builder materializes a graph store from a triple source. Every IRI subject
// becomes one entity document; IRI objects become weighted edges; literal
// objects become the document text. Edges whose target IRI never appears as
// a subject are dropped and logged, never persisted.
type Builder struct {
	table  *ontology.WeightTable
	logger *slog.Logger
}

// NewBuilder wires the builder to the relationship table that also drives
// retrieval, so edge weights and rendered sentences always agree.
func NewBuilder(table *ontology.WeightTable, logger *slog.Logger) *Builder {
	if table == nil {
		table = ontology.DefaultTable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{table: table, logger: logger}
}

type litProp struct {
	pred  string
	value string
}

type pendingEdge struct {
	target string
	kind   string
}

type subjectState struct {
	id        string
	label     string
	classes   []string
	descs     []string
	lits      []litProp
	edges     []pendingEdge
	seenClass map[string]struct{}
	seenLit   map[string]struct{}
	seenEdge  map[string]struct{}
}

func newSubjectState(id string) *subjectState {
	return &subjectState{
		id:        id,
		seenClass: map[string]struct{}{},
		seenLit:   map[string]struct{}{},
		seenEdge:  map[string]struct{}{},
	}
}

// Build decodes the source and returns the populated store together with
// build statistics. Blank-node subjects are skipped; a malformed stream
// aborts the build with the decoder's error.
func (b *Builder) Build(ctx context.Context, src Source) (*graph.Store, types.BuildStats, error) {
	start := time.Now()
	stats := types.BuildStats{}

	rc, format, err := src.Open(ctx)
	if err != nil {
		return nil, stats, err
	}
	defer rc.Close()

	subjects := map[string]*subjectState{}
	order := []string{}
	dec := knakk.NewTripleDecoder(rc, format)

	for {
		if stats.Triples%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
		}
		triple, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("failed to decode %s after %d triples: %w", src.Name(), stats.Triples, err)
		}
		stats.Triples++

		if triple.Subj.Type() != knakk.TermIRI {
			continue
		}
		subjectIRI := triple.Subj.String()
		state, ok := subjects[subjectIRI]
		if !ok {
			state = newSubjectState(subjectIRI)
			subjects[subjectIRI] = state
			order = append(order, subjectIRI)
		}

		predicate := triple.Pred.String()
		local := ontology.NormalizePredicate(predicate)

		switch triple.Obj.Type() {
		case knakk.TermIRI:
			target := triple.Obj.String()
			if predicate == rdfTypeIRI {
				class := ontology.NormalizePredicate(target)
				if _, dup := state.seenClass[class]; !dup {
					state.seenClass[class] = struct{}{}
					state.classes = append(state.classes, class)
				}
				continue
			}
			key := local + "\x00" + target
			if _, dup := state.seenEdge[key]; dup {
				continue
			}
			state.seenEdge[key] = struct{}{}
			state.edges = append(state.edges, pendingEdge{target: target, kind: local})
		case knakk.TermLiteral:
			value := strings.TrimSpace(triple.Obj.String())
			if value == "" {
				continue
			}
			if _, isLabel := labelPredicates[local]; isLabel {
				if state.label == "" {
					state.label = value
				}
				continue
			}
			key := local + "\x00" + value
			if _, dup := state.seenLit[key]; dup {
				continue
			}
			state.seenLit[key] = struct{}{}
			if _, isDesc := descriptionPredicates[local]; isDesc {
				state.descs = append(state.descs, value)
			} else {
				state.lits = append(state.lits, litProp{pred: local, value: value})
			}
		}
	}

	store := graph.NewStore()
	for _, id := range order {
		state := subjects[id]
		doc := &types.EntityDocument{
			ID:    id,
			Label: state.displayLabel(),
			Types: state.classes,
			Text:  state.renderText(b.table),
			Metadata: map[string]string{
				"local_name": ontology.NormalizePredicate(id),
			},
		}
		if primary := doc.PrimaryType(); primary != "" {
			doc.Metadata["primary_type"] = primary
		}
		store.AddDocument(doc)
	}

	for _, id := range order {
		for _, pe := range subjects[id].edges {
			if !store.Has(pe.target) {
				stats.DroppedEdges++
				b.logger.Warn("dropping dangling edge",
					"error", &types.DanglingReferenceError{Source: id, Target: pe.target, Kind: pe.kind, Missing: pe.target})
				continue
			}
			if err := store.AddEdge(id, pe.target, pe.kind, b.table.WeightOf(pe.kind)); err != nil {
				stats.DroppedEdges++
				b.logger.Warn("dropping edge", "source", id, "kind", pe.kind, "target", pe.target, "error", err)
			}
		}
	}

	stats.Documents = store.Len()
	stats.Edges = store.EdgeCount()
	stats.BuiltAt = time.Now().UTC()
	stats.Took = time.Since(start)

	b.logger.Info("graph build complete",
		"source", src.Name(),
		"triples", stats.Triples,
		"documents", stats.Documents,
		"edges", stats.Edges,
		"dropped_edges", stats.DroppedEdges,
		"took", stats.Took)
	return store, stats, nil
}

// displayLabel prefers the asserted label and falls back to the humanized
// IRI local name.
func (s *subjectState) displayLabel() string {
	if s.label != "" {
		return s.label
	}
	local := ontology.NormalizePredicate(s.id)
	return strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(local))
}

// renderText produces the document text: label sentence, then description
// literals verbatim, then the remaining literal properties as rendered
// sentences in sorted order. The rendering is deterministic so rebuilds of
// the same source embed identical text.
func (s *subjectState) renderText(table *ontology.WeightTable) string {
	label := s.displayLabel()
	parts := []string{ensureSentence(label)}
	for _, d := range s.descs {
		parts = append(parts, ensureSentence(d))
	}
	lits := make([]litProp, len(s.lits))
	copy(lits, s.lits)
	sort.Slice(lits, func(i, j int) bool {
		if lits[i].pred != lits[j].pred {
			return lits[i].pred < lits[j].pred
		}
		return lits[i].value < lits[j].value
	})
	for _, lp := range lits {
		parts = append(parts, table.Render(label, lp.pred, lp.value))
	}
	return strings.Join(parts, " ")
}

// ensureSentence terminates a fragment with a period unless it already ends
// in sentence punctuation.
func ensureSentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
