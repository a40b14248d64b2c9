package rdf

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	knakk "github.com/knakk/rdf"
	"github.com/soundprediction/go-reliquary/pkg/graph"
	"github.com/soundprediction/go-reliquary/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioNTriples = `<http://example.org/church> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.cidoc-crm.org/cidoc-crm/E22_Human-Made_Object> .
<http://example.org/church> <http://www.w3.org/2000/01/rdf-schema#label> "Village Church" .
<http://example.org/church> <http://www.cidoc-crm.org/cidoc-crm/P3_has_note> "A late gothic village church." .
<http://example.org/church> <http://example.org/relation/contains> <http://example.org/panel> .
<http://example.org/church> <http://example.org/relation/contains> <http://example.org/panel> .
<http://example.org/church> <http://example.org/relation/locatedIn> <http://example.org/village> .
<http://example.org/church> <http://www.cidoc-crm.org/cidoc-crm/P62_depicts> <http://example.org/ghost> .
<http://example.org/panel> <http://www.w3.org/2000/01/rdf-schema#label> "Altar Panel" .
<http://example.org/panel> <http://example.org/relation/depicts> <http://example.org/donor> .
<http://example.org/panel> <http://www.cidoc-crm.org/cidoc-crm/P90_has_value> "1520" .
<http://example.org/donor> <http://www.w3.org/2000/01/rdf-schema#label> "The Donor" .
<http://example.org/donor> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.cidoc-crm.org/cidoc-crm/E21_Person> .
<http://example.org/village> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.cidoc-crm.org/cidoc-crm/E53_Place> .
_:b1 <http://www.w3.org/2000/01/rdf-schema#label> "Blank" .
`

func buildScenario(t *testing.T) (*graph.Store, types.BuildStats) {
	t.Helper()
	builder := NewBuilder(nil, nil)
	store, stats, err := builder.Build(context.Background(), ReaderSource{
		Reader: strings.NewReader(scenarioNTriples),
		Format: knakk.NTriples,
		Label:  "scenario",
	})
	require.NoError(t, err)
	return store, stats
}

func TestBuildScenarioGraph(t *testing.T) {
	g, stats := buildScenario(t)

	assert.Equal(t, 14, stats.Triples)
	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 3, stats.Edges)
	assert.Equal(t, 1, stats.DroppedEdges)
	assert.False(t, stats.BuiltAt.IsZero())

	church, err := g.Get("http://example.org/church")
	require.NoError(t, err)
	assert.Equal(t, "Village Church", church.Label)
	assert.Equal(t, []string{"E22_Human-Made_Object"}, church.Types)
	assert.Equal(t, "Village Church. A late gothic village church.", church.Text)
	assert.Equal(t, "church", church.Metadata["local_name"])
	assert.Equal(t, "E22_Human-Made_Object", church.Metadata["primary_type"])

	// The ghost target never appears as a subject, so no stub document.
	_, err = g.Get("http://example.org/ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBuildRendersLiteralProperties(t *testing.T) {
	g, _ := buildScenario(t)

	panel, err := g.Get("http://example.org/panel")
	require.NoError(t, err)
	assert.Equal(t, "Altar Panel. Altar Panel has value 1520.", panel.Text)
}

func TestBuildLabelFallsBackToLocalName(t *testing.T) {
	g, _ := buildScenario(t)

	village, err := g.Get("http://example.org/village")
	require.NoError(t, err)
	assert.Equal(t, "village", village.Label)
	assert.Equal(t, "E53_Place", village.PrimaryType())
	assert.Equal(t, "village.", village.Text)
}

func TestBuildEdgesCarryTableWeights(t *testing.T) {
	g, _ := buildScenario(t)

	neighbors, err := g.Neighbors("http://example.org/church", types.DirectionOut)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)

	weights := map[string]float64{}
	for _, nb := range neighbors {
		weights[nb.Edge.Kind] = nb.Edge.Weight
	}
	assert.InDelta(t, 0.6, weights["contains"], 1e-9)
	assert.InDelta(t, 0.5, weights["locatedIn"], 1e-9)

	depicted, err := g.Neighbors("http://example.org/donor", types.DirectionIn)
	require.NoError(t, err)
	require.Len(t, depicted, 1)
	assert.Equal(t, "depicts", depicted[0].Edge.Kind)
	assert.InDelta(t, 0.8, depicted[0].Edge.Weight, 1e-9)
}

func TestBuildFromTurtleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.ttl")
	turtle := `@prefix crm: <http://www.cidoc-crm.org/cidoc-crm/> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
<http://example.org/work> rdfs:label "The Work" ;
    crm:P62_depicts <http://example.org/saint> .
<http://example.org/saint> rdfs:label "The Saint" .
`
	require.NoError(t, os.WriteFile(path, []byte(turtle), 0o644))

	builder := NewBuilder(nil, nil)
	store, stats, err := builder.Build(context.Background(), FileSource{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 1, stats.Edges)
	assert.Equal(t, 0, stats.DroppedEdges)

	neighbors, err := store.Neighbors("http://example.org/work", types.DirectionOut)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "P62_depicts", neighbors[0].Edge.Kind)
	assert.Equal(t, "The Saint", neighbors[0].Document.Label)
}

func TestBuildHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	builder := NewBuilder(nil, nil)
	_, _, err := builder.Build(ctx, ReaderSource{Reader: strings.NewReader(scenarioNTriples), Format: knakk.NTriples})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, knakk.NTriples, DetectFormat("graph.nt"))
	assert.Equal(t, knakk.Turtle, DetectFormat("graph.ttl"))
	assert.Equal(t, knakk.RDFXML, DetectFormat("graph.rdf"))
	assert.Equal(t, knakk.RDFXML, DetectFormat("ontology.owl"))
	assert.Equal(t, knakk.Turtle, DetectFormat("dump"))
}

func TestFormatFromName(t *testing.T) {
	f, err := FormatFromName("ntriples")
	require.NoError(t, err)
	assert.Equal(t, knakk.NTriples, f)

	f, err = FormatFromName(" TTL ")
	require.NoError(t, err)
	assert.Equal(t, knakk.Turtle, f)

	f, err = FormatFromName("rdfxml")
	require.NoError(t, err)
	assert.Equal(t, knakk.RDFXML, f)

	_, err = FormatFromName("json-ld")
	assert.ErrorContains(t, err, "unknown rdf format")
}
