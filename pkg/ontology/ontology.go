// Package ontology carries the CIDOC-CRM relationship model: per-predicate
// edge weights, sentence templates, and the event-class set that gates context
// traversal. A single table drives both edge weighting at build time and
// sentence rendering at query time, so a weight change and its wording stay
// consistent.
package ontology

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	jsonrepair "github.com/kaptinlin/jsonrepair"
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// Category groups predicates by the kind of statement they make.
type Category string

const (
	CategorySpatial       Category = "spatial"
	CategoryTemporal      Category = "temporal"
	CategoryProduction    Category = "production"
	CategoryParticipation Category = "participation"
	CategoryComposition   Category = "composition"
	CategoryConceptual    Category = "conceptual"
	CategoryTaxonomy      Category = "taxonomy"
)

// Relation is one weighted, renderable relationship kind. Forward renders the
// stored orientation, Inverse the i-suffixed orientation. When Inverse is
// empty the forward template is applied with the operands swapped, which
// states the same fact from the base orientation.
type Relation struct {
	Weight   float64  `json:"weight"`
	Category Category `json:"category"`
	Forward  string   `json:"forward"`
	Inverse  string   `json:"inverse,omitempty"`
}

// DefaultWeight applies to predicates the table does not know. Unknown
// predicates still produce edges and sentences; they just carry low weight.
const DefaultWeight = 0.3

var crmInverse = regexp.MustCompile(`^P(\d+)i(_|$)`)

// WeightTable maps normalized predicates to relations. WeightOf is total:
// every predicate resolves to a weight, falling back to the default.
type WeightTable struct {
	relations     map[string]Relation
	byCode        map[string]string
	defaultWeight float64
}

// NewWeightTable builds a table from explicit relations. Keys are normalized
// predicate local names.
func NewWeightTable(relations map[string]Relation, defaultWeight float64) *WeightTable {
	t := &WeightTable{
		relations:     make(map[string]Relation, len(relations)),
		defaultWeight: defaultWeight,
	}
	for k, v := range relations {
		t.relations[NormalizePredicate(k)] = v
	}
	t.reindex()
	return t
}

// reindex rebuilds the P-code lookup used for CRM inverse resolution, where
// P55i_currently_holds must find P55_has_current_location by code alone.
func (t *WeightTable) reindex() {
	t.byCode = make(map[string]string, len(t.relations))
	for key := range t.relations {
		if code, ok := crmCode(key); ok {
			t.byCode[code] = key
		}
	}
}

func crmCode(predicate string) (string, bool) {
	if !strings.HasPrefix(predicate, "P") {
		return "", false
	}
	rest := predicate[1:]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", false
	}
	if end < len(rest) && rest[end] != '_' {
		return "", false
	}
	return "P" + rest[:end], true
}

// NormalizePredicate reduces a predicate IRI to its local name. Plain names
// pass through unchanged.
func NormalizePredicate(predicate string) string {
	p := strings.TrimSpace(predicate)
	if i := strings.LastIndex(p, "#"); i >= 0 {
		p = p[i+1:]
	} else if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}

// resolve finds the relation for a predicate, reporting whether the predicate
// named the inverse orientation. Misses on the exact key fall back to inverse
// resolution: a trailing "i" on a plain name, or an i-suffixed CRM code.
func (t *WeightTable) resolve(predicate string) (Relation, bool, bool) {
	key := NormalizePredicate(predicate)
	if rel, ok := t.relations[key]; ok {
		return rel, false, true
	}
	if m := crmInverse.FindStringSubmatch(key); m != nil {
		if base, ok := t.byCode["P"+m[1]]; ok {
			return t.relations[base], true, true
		}
		return Relation{}, false, false
	}
	if strings.HasSuffix(key, "i") {
		if rel, ok := t.relations[strings.TrimSuffix(key, "i")]; ok {
			return rel, true, true
		}
	}
	return Relation{}, false, false
}

// Has reports whether the predicate resolves to a known relation, in either
// orientation.
func (t *WeightTable) Has(predicate string) bool {
	_, _, ok := t.resolve(predicate)
	return ok
}

// WeightOf returns the edge weight for a predicate. Inverse orientations carry
// the weight of their base relation. Unknown predicates get the default.
func (t *WeightTable) WeightOf(predicate string) float64 {
	rel, _, ok := t.resolve(predicate)
	if !ok {
		return t.defaultWeight
	}
	return rel.Weight
}

// CategoryOf returns the relation category, or "" for unknown predicates.
func (t *WeightTable) CategoryOf(predicate string) Category {
	rel, _, ok := t.resolve(predicate)
	if !ok {
		return ""
	}
	return rel.Category
}

// Render produces the deterministic sentence for one edge. Subject and object
// are the edge's stored endpoints; an i-suffixed predicate renders through the
// inverse template. Unknown predicates render as "subject words object." with
// the predicate humanized.
func (t *WeightTable) Render(subjectLabel, predicate, objectLabel string) string {
	rel, inverted, ok := t.resolve(predicate)
	if !ok {
		return fmt.Sprintf("%s %s %s.", subjectLabel, humanizePredicate(predicate), objectLabel)
	}
	if inverted {
		if rel.Inverse != "" {
			return fmt.Sprintf(rel.Inverse, subjectLabel, objectLabel)
		}
		return fmt.Sprintf(rel.Forward, objectLabel, subjectLabel)
	}
	return fmt.Sprintf(rel.Forward, subjectLabel, objectLabel)
}

/// humanizePredicate turns a predicate local name into words: the CRM code
// prefix is dropped, underscores and hyphens become spaces, camel case is
// split. "P62_depicts" and "locatedIn" become "depicts" and "located in".
func humanizePredicate(predicate string) string {
	p := NormalizePredicate(predicate)
	if code, ok := crmCode(p); ok {
		p = strings.TrimPrefix(strings.TrimPrefix(p, code), "_")
		if p == "" {
			p = code
		}
	}
	p = strings.NewReplacer("_", " ", "-", " ").Replace(p)
	var b strings.Builder
	for i, r := range p {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(p[i-1])
			if prev != ' ' && (prev < 'A' || prev > 'Z') {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return strings.ToLower(strings.Join(strings.Fields(b.String()), " "))
}

// Size returns the number of base relations in the table.
func (t *WeightTable) Size() int { return len(t.relations) }

type tableFile struct {
	DefaultWeight float64             `json:"default_weight"`
	Relations     map[string]Relation `json:"relations"`
}

// LoadTable reads a relation table from a JSON file and merges it over the
// built-in defaults: file entries override same-key defaults, new entries
// extend the table. Hand-edited files are passed through jsonrepair first, so
// trailing commas or missing quotes do not block startup. Invalid entries are
// a ConfigurationError.
func LoadTable(path string) (*WeightTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading weight table %s: %w", path, err)
	}
	repaired, err := jsonrepair.JSONRepair(string(data))
	if err != nil {
		return nil, fmt.Errorf("repairing weight table %s: %w", path, err)
	}
	var file tableFile
	if err := json.Unmarshal([]byte(repaired), &file); err != nil {
		return nil, fmt.Errorf("parsing weight table %s: %w", path, err)
	}

	table := DefaultTable()
	if file.DefaultWeight != 0 {
		if file.DefaultWeight < 0 || file.DefaultWeight > 1 {
			return nil, &types.ConfigurationError{
				Field:  "ontology.default_weight",
				Reason: fmt.Sprintf("must be in (0,1], got %v", file.DefaultWeight),
			}
		}
		table.defaultWeight = file.DefaultWeight
	}
	for key, rel := range file.Relations {
		if rel.Weight <= 0 || rel.Weight > 1 {
			return nil, &types.ConfigurationError{
				Field:  "ontology.relations." + key,
				Reason: fmt.Sprintf("weight must be in (0,1], got %v", rel.Weight),
			}
		}
		if rel.Forward == "" {
			return nil, &types.ConfigurationError{
				Field:  "ontology.relations." + key,
				Reason: "forward template must not be empty",
			}
		}
		table.relations[NormalizePredicate(key)] = rel
	}
	table.reindex()
	return table, nil
}

// DefaultTable ships the CIDOC-CRM relations the engine knows out of the box,
// plus plain-name aliases for simplified exports. Weights favor spatial and
// production links, which bind heritage objects to places and makers; pure
// taxonomy links rank lowest.
func DefaultTable() *WeightTable {
	return NewWeightTable(map[string]Relation{
		// spatial
		"P55_has_current_location":            {Weight: 0.85, Category: CategorySpatial, Forward: "%s is currently located in %s.", Inverse: "%s currently holds %s."},
		"P54_has_current_permanent_location":  {Weight: 0.8, Category: CategorySpatial, Forward: "%s has its permanent location in %s.", Inverse: "%s is the permanent location of %s."},
		"P53_has_former_or_current_location":  {Weight: 0.7, Category: CategorySpatial, Forward: "%s has or had its location in %s.", Inverse: "%s is or was the location of %s."},
		"P7_took_place_at":                    {Weight: 0.8, Category: CategorySpatial, Forward: "%s took place at %s.", Inverse: "%s was the site of %s."},
		"P89_falls_within":                    {Weight: 0.6, Category: CategorySpatial, Forward: "%s falls within %s.", Inverse: "%s spatially contains %s."},
		"P122_borders_with":                   {Weight: 0.5, Category: CategorySpatial, Forward: "%s borders with %s."},
		"P74_has_current_or_former_residence": {Weight: 0.6, Category: CategorySpatial, Forward: "%s resides or resided in %s.", Inverse: "%s is or was the residence of %s."},
		// production
		"P108_has_produced":           {Weight: 0.85, Category: CategoryProduction, Forward: "%s has produced %s.", Inverse: "%s was produced by %s."},
		"P14_carried_out_by":          {Weight: 0.8, Category: CategoryProduction, Forward: "%s was carried out by %s.", Inverse: "%s carried out %s."},
		"P94_has_created":             {Weight: 0.8, Category: CategoryProduction, Forward: "%s has created %s.", Inverse: "%s was created by %s."},
		"P92_brought_into_existence":  {Weight: 0.7, Category: CategoryProduction, Forward: "%s brought %s into existence.", Inverse: "%s was brought into existence by %s."},
		"P31_has_modified":            {Weight: 0.7, Category: CategoryProduction, Forward: "%s has modified %s.", Inverse: "%s was modified by %s."},
		// participation
		"P11_had_participant":               {Weight: 0.75, Category: CategoryParticipation, Forward: "%s had participant %s.", Inverse: "%s participated in %s."},
		"P12_occurred_in_the_presence_of":   {Weight: 0.6, Category: CategoryParticipation, Forward: "%s occurred in the presence of %s.", Inverse: "%s was present at %s."},
		"P107_has_current_or_former_member": {Weight: 0.6, Category: CategoryParticipation, Forward: "%s has or had member %s.", Inverse: "%s is or was a member of %s."},
		"P22_transferred_title_to":          {Weight: 0.7, Category: CategoryParticipation, Forward: "%s transferred title to %s.", Inverse: "%s acquired title through %s."},
		"P23_transferred_title_from":        {Weight: 0.7, Category: CategoryParticipation, Forward: "%s transferred title from %s.", Inverse: "%s surrendered title through %s."},
		"P24_transferred_title_of":          {Weight: 0.75, Category: CategoryParticipation, Forward: "%s transferred title of %s.", Inverse: "%s changed ownership through %s."},
		// composition
		"P46_is_composed_of": {Weight: 0.7, Category: CategoryComposition, Forward: "%s is composed of %s.", Inverse: "%s forms part of %s."},
		"P56_bears_feature":  {Weight: 0.65, Category: CategoryComposition, Forward: "%s bears the feature %s.", Inverse: "%s is found on %s."},
		"P128_carries":       {Weight: 0.7, Category: CategoryComposition, Forward: "%s carries %s.", Inverse: "%s is carried by %s."},
		// temporal
		"P4_has_time-span":   {Weight: 0.55, Category: CategoryTemporal, Forward: "%s has time-span %s.", Inverse: "%s is the time-span of %s."},
		"P117_occurs_during": {Weight: 0.6, Category: CategoryTemporal, Forward: "%s occurs during %s.", Inverse: "%s includes %s."},
		// conceptual
		"P62_depicts":           {Weight: 0.8, Category: CategoryConceptual, Forward: "%s depicts %s.", Inverse: "%s is depicted by %s."},
		"P65_shows_visual_item": {Weight: 0.7, Category: CategoryConceptual, Forward: "%s shows the visual item %s.", Inverse: "%s is shown by %s."},
		"P67_refers_to":         {Weight: 0.6, Category: CategoryConceptual, Forward: "%s refers to %s.", Inverse: "%s is referred to by %s."},
		"P129_is_about":         {Weight: 0.65, Category: CategoryConceptual, Forward: "%s is about %s.", Inverse: "%s is the subject of %s."},
		"P138_represents":       {Weight: 0.7, Category: CategoryConceptual, Forward: "%s represents %s.", Inverse: "%s is represented by %s."},
		// taxonomy
		"P2_has_type":           {Weight: 0.3, Category: CategoryTaxonomy, Forward: "%s has type %s.", Inverse: "%s is the type of %s."},
		"P127_has_broader_term": {Weight: 0.3, Category: CategoryTaxonomy, Forward: "%s has broader term %s.", Inverse: "%s has narrower term %s."},
		// plain-name aliases used by simplified exports
		"depicts":        {Weight: 0.8, Category: CategoryConceptual, Forward: "%s depicts %s.", Inverse: "%s is depicted by %s."},
		"contains":       {Weight: 0.6, Category: CategorySpatial, Forward: "%s contains %s.", Inverse: "%s is contained in %s."},
		"locatedIn":      {Weight: 0.5, Category: CategorySpatial, Forward: "%s is located in %s.", Inverse: "%s is the location of %s."},
		"partOf":         {Weight: 0.6, Category: CategoryComposition, Forward: "%s is part of %s.", Inverse: "%s has part %s."},
		"createdBy":      {Weight: 0.8, Category: CategoryProduction, Forward: "%s was created by %s.", Inverse: "%s created %s."},
		"participatedIn": {Weight: 0.7, Category: CategoryParticipation, Forward: "%s participated in %s.", Inverse: "%s had participant %s."},
	}, DefaultWeight)
}
