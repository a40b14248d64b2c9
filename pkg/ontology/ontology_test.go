package ontology

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/soundprediction/go-reliquary/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePredicate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://www.cidoc-crm.org/cidoc-crm/P55_has_current_location", "P55_has_current_location"},
		{"http://erlangen-crm.org/current/P62_depicts", "P62_depicts"},
		{"crm:P7_took_place_at", "crm:P7_took_place_at"},
		{"depicts", "depicts"},
		{"  locatedIn ", "locatedIn"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePredicate(tt.in))
	}
}

func TestWeightOfIsTotal(t *testing.T) {
	table := DefaultTable()

	assert.InDelta(t, 0.85, table.WeightOf("P55_has_current_location"), 1e-9)
	assert.InDelta(t, 0.85, table.WeightOf("http://www.cidoc-crm.org/cidoc-crm/P55_has_current_location"), 1e-9)
	assert.InDelta(t, 0.5, table.WeightOf("locatedIn"), 1e-9)

	// Unknown predicates never error, they get the default weight.
	assert.InDelta(t, DefaultWeight, table.WeightOf("P999_totally_unknown"), 1e-9)
	assert.InDelta(t, DefaultWeight, table.WeightOf("somethingElse"), 1e-9)
}

func TestInversePredicateResolution(t *testing.T) {
	table := DefaultTable()

	// CRM style: the i-suffixed code resolves by code, whatever the suffix words.
	assert.InDelta(t, 0.85, table.WeightOf("P55i_currently_holds"), 1e-9)
	assert.InDelta(t, 0.8, table.WeightOf("P62i"), 1e-9)
	assert.True(t, table.Has("P108i_was_produced_by"))

	// Plain style: a trailing i on a known name.
	assert.InDelta(t, 0.5, table.WeightOf("locatedIni"), 1e-9)

	// An i-suffixed code the table does not know stays unknown.
	assert.False(t, table.Has("P400i_nothing"))
	assert.InDelta(t, DefaultWeight, table.WeightOf("P400i_nothing"), 1e-9)
}

func TestRender(t *testing.T) {
	table := DefaultTable()

	assert.Equal(t, "Altar Panel depicts The Donor.",
		table.Render("Altar Panel", "depicts", "The Donor"))
	assert.Equal(t, "Village Church contains Altar Panel.",
		table.Render("Village Church", "contains", "Altar Panel"))
	assert.Equal(t, "Village Church is located in Flechtingen.",
		table.Render("Village Church", "locatedIn", "Flechtingen"))

	// Inverse orientation through the inverse template.
	assert.Equal(t, "The Donor is depicted by Altar Panel.",
		table.Render("The Donor", "P62i_is_depicted_by", "Altar Panel"))

	// Inverse orientation without a template swaps the operands.
	assert.Equal(t, "Flechtingen borders with Altmark.",
		table.Render("Altmark", "P122i_borders_with", "Flechtingen"))

	// Unknown predicates render humanized words.
	assert.Equal(t, "Altar Panel was restored by Workshop.",
		table.Render("Altar Panel", "wasRestoredBy", "Workshop"))
	assert.Equal(t, "Production used general technique Oil Painting.",
		table.Render("Production", "P32_used_general_technique", "Oil Painting"))
}

func TestWeightAndRenderingShareOneEntry(t *testing.T) {
	table := NewWeightTable(map[string]Relation{
		"guards": {Weight: 0.9, Category: CategoryParticipation, Forward: "%s guards %s."},
	}, 0.2)

	assert.InDelta(t, 0.9, table.WeightOf("guards"), 1e-9)
	assert.Equal(t, "Lion guards Portal.", table.Render("Lion", "guards", "Portal"))

	// The inverse orientation resolves through the same entry for both.
	assert.InDelta(t, 0.9, table.WeightOf("guardsi"), 1e-9)
	assert.Equal(t, "Lion guards Portal.", table.Render("Portal", "guardsi", "Lion"))
}

func TestLoadTableMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.json")

	// Trailing comma on purpose: hand-edited files get repaired before parsing.
	content := `{
		"default_weight": 0.25,
		"relations": {
			"P62_depicts": {"weight": 0.95, "category": "conceptual", "forward": "%s portrays %s."},
			"consecratedBy": {"weight": 0.7, "category": "participation", "forward": "%s was consecrated by %s."},
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.95, table.WeightOf("P62_depicts"), 1e-9)
	assert.Equal(t, "Panel portrays Donor.", table.Render("Panel", "P62_depicts", "Donor"))
	assert.InDelta(t, 0.7, table.WeightOf("consecratedBy"), 1e-9)
	// Untouched defaults survive the merge.
	assert.InDelta(t, 0.6, table.WeightOf("contains"), 1e-9)
	// The file's default weight replaces the built-in one.
	assert.InDelta(t, 0.25, table.WeightOf("unknownKind"), 1e-9)
}

func TestLoadTableRejectsInvalidEntries(t *testing.T) {
	dir := t.TempDir()

	badWeight := filepath.Join(dir, "bad_weight.json")
	require.NoError(t, os.WriteFile(badWeight,
		[]byte(`{"relations": {"depicts": {"weight": 1.5, "forward": "%s depicts %s."}}}`), 0o644))
	_, err := LoadTable(badWeight)
	var ce *types.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Field, "depicts")

	emptyTemplate := filepath.Join(dir, "empty_template.json")
	require.NoError(t, os.WriteFile(emptyTemplate,
		[]byte(`{"relations": {"depicts": {"weight": 0.5, "forward": ""}}}`), 0o644))
	_, err = LoadTable(emptyTemplate)
	require.True(t, errors.As(err, &ce))

	_, err = LoadTable(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestEventSet(t *testing.T) {
	defaults := NewEventSet(nil)
	assert.True(t, defaults.Contains("E12_Production"))
	assert.True(t, defaults.Contains("http://www.cidoc-crm.org/cidoc-crm/E8_Acquisition"))
	assert.False(t, defaults.Contains("E22_Human-Made_Object"))

	production := &types.EntityDocument{
		ID:    "production_of_altar",
		Types: []string{"E12_Production"},
	}
	church := &types.EntityDocument{
		ID:    "village_church",
		Types: []string{"E22_Human-Made_Object", "E53_Place"},
	}
	assert.True(t, defaults.IsEvent(production))
	assert.False(t, defaults.IsEvent(church))
	assert.False(t, defaults.IsEvent(nil))

	custom := NewEventSet([]string{"Ceremony"})
	assert.True(t, custom.IsEvent(&types.EntityDocument{Types: []string{"Ceremony"}}))
	assert.False(t, custom.IsEvent(production))
}
