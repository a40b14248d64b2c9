package ontology

import (
	"github.com/soundprediction/go-reliquary/pkg/types"
)

// EventSet answers whether an entity's ontology classes mark it as an event.
// Traversal descends through event nodes because CRM models them as the glue
// between objects, actors, places and time-spans.
type EventSet struct {
	classes map[string]struct{}
}

// NewEventSet builds a set from class local names. An empty slice falls back
// to the defaults.
func NewEventSet(classes []string) *EventSet {
	if len(classes) == 0 {
		classes = DefaultEventClasses()
	}
	s := &EventSet{classes: make(map[string]struct{}, len(classes))}
	for _, c := range classes {
		s.classes[NormalizePredicate(c)] = struct{}{}
	}
	return s
}

// Contains reports whether a single class is in the set.
func (s *EventSet) Contains(class string) bool {
	_, ok := s.classes[NormalizePredicate(class)]
	return ok
}

// IsEvent reports whether any of the document's classes is an event class.
func (s *EventSet) IsEvent(doc *types.EntityDocument) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.Types {
		if s.Contains(c) {
			return true
		}
	}
	return false
}

// Size returns the number of classes in the set.
func (s *EventSet) Size() int { return len(s.classes) }

// DefaultEventClasses is the CRM perdurant branch: temporal entities whose
// instances connect the persistent things of the graph.
func DefaultEventClasses() []string {
	return []string{
		"E5_Event",
		"E7_Activity",
		"E8_Acquisition",
		"E9_Move",
		"E10_Transfer_of_Custody",
		"E11_Modification",
		"E12_Production",
		"E13_Attribute_Assignment",
		"E63_Beginning_of_Existence",
		"E64_End_of_Existence",
		"E65_Creation",
		"E66_Formation",
		"E67_Birth",
		"E68_Dissolution",
		"E69_Death",
		"E79_Part_Addition",
		"E80_Part_Removal",
		"E81_Transformation",
		"E83_Type_Creation",
		"E85_Joining",
		"E86_Leaving",
		"E87_Curation_Activity",
	}
}
