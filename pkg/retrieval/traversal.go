package retrieval

import (
	"log/slog"
	"sort"

	"github.com/soundprediction/go-reliquary/pkg/graph"
	"github.com/soundprediction/go-reliquary/pkg/ontology"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// Traverser assembles the textual context block for a selected entity by
// walking the graph outward through both edge directions. Events are the
// semantic glue of the ontology, so the walk descends through a neighbor only
// when the neighbor or the current node is event-typed; a hop between two
// non-event nodes still renders its sentence but is never explored further.
type Traverser struct {
	table  *ontology.WeightTable
	events *ontology.EventSet
	logger *slog.Logger
}

// NewTraverser builds a traverser over the given relationship table and
// event-class set.
func NewTraverser(table *ontology.WeightTable, events *ontology.EventSet, logger *slog.Logger) *Traverser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Traverser{table: table, events: events, logger: logger}
}

type frame struct {
	id    string
	depth int
}

// Expand walks outward from origin with the given hop budget and returns the
// context block: the origin's own text first, then one rendered sentence per
// explored edge. Depth 0 means the origin text alone. Sentences deduplicate
// on the rendered string, so an edge reached from both of its endpoints
// appears once. The walk is breadth-first with per-node edges sorted by
// (kind, neighbor id), so output order is deterministic for a given build.
func (t *Traverser) Expand(store *graph.Store, originID string, depth int) (types.ContextBlock, error) {
	origin, err := store.Get(originID)
	if err != nil {
		return types.ContextBlock{}, err
	}
	if depth < 0 {
		depth = 0
	}

	block := types.ContextBlock{
		Origin: origin.ID,
		Label:  labelOf(origin),
		Lines:  []string{origin.Text},
	}

	visited := map[string]struct{}{origin.ID: {}}
	seen := map[string]struct{}{}
	queue := []frame{{id: origin.ID, depth: depth}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth == 0 {
			continue
		}
		curDoc, err := store.Get(cur.id)
		if err != nil {
			continue
		}
		neighbors, err := store.Neighbors(cur.id, types.DirectionBoth)
		if err != nil {
			continue
		}
		sort.SliceStable(neighbors, func(i, j int) bool {
			if neighbors[i].Edge.Kind != neighbors[j].Edge.Kind {
				return neighbors[i].Edge.Kind < neighbors[j].Edge.Kind
			}
			if neighbors[i].Document.ID != neighbors[j].Document.ID {
				return neighbors[i].Document.ID < neighbors[j].Document.ID
			}
			return neighbors[i].Outgoing && !neighbors[j].Outgoing
		})

		curIsEvent := t.events.IsEvent(curDoc)
		for _, nb := range neighbors {
			subject, object := nb.Document, curDoc
			if nb.Outgoing {
				subject, object = curDoc, nb.Document
			}
			sentence := t.table.Render(labelOf(subject), nb.Edge.Kind, labelOf(object))
			if _, dup := seen[sentence]; !dup {
				seen[sentence] = struct{}{}
				block.Lines = append(block.Lines, sentence)
			}

			if _, done := visited[nb.Document.ID]; done {
				continue
			}
			if !curIsEvent && !t.events.IsEvent(nb.Document) {
				continue
			}
			visited[nb.Document.ID] = struct{}{}
			queue = append(queue, frame{id: nb.Document.ID, depth: cur.depth - 1})
		}
	}
	return block, nil
}

// labelOf falls back to the id when a document carries no display label.
func labelOf(doc *types.EntityDocument) string {
	if doc.Label != "" {
		return doc.Label
	}
	return doc.ID
}
