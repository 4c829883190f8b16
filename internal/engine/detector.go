// Package engine contains the entity collection manager and the
// relationship detector that runs over a session's entity set.
package engine

import (
	"github.com/facetlabs/facet/pkg/types"
)

// Relationship types produced by the built-in heuristics.
const (
	RelationshipRelatesTo   = "relates_to"
	RelationshipDerivedFrom = "derived_from"
	RelationshipDependsOn   = "depends_on"
	RelationshipPartOf      = "part_of"
)

// Heuristic examines one ordered entity pair and returns a relationship
// record when it fires, nil otherwise. Heuristics must be pure: no I/O,
// no shared state, deterministic for the same inputs.
type Heuristic func(a, b *types.Entity) *types.RelationshipRecord

// RelationshipGraph maps entity id → target entity id → the records of
// every heuristic that fired for that ordered pair.
type RelationshipGraph map[string]map[string][]types.RelationshipRecord

// Detector runs a fixed list of heuristics over every ordered entity pair.
// Detection is never incremental: it always recomputes the whole graph
// from the current entity list.
type Detector struct {
	heuristics []Heuristic
}

// NewDetector creates a detector with the built-in heuristics:
// shared attributes, derived-from, depends-on, and hierarchical part-of.
func NewDetector() *Detector {
	return NewDetectorWith(
		SharedAttributeHeuristic,
		DerivedFromHeuristic,
		DependsOnHeuristic,
		PartOfHeuristic,
	)
}

// NewDetectorWith creates a detector with a custom heuristic list. Used by
// tests to exercise heuristics in isolation.
func NewDetectorWith(heuristics ...Heuristic) *Detector {
	return &Detector{heuristics: heuristics}
}

// Detect builds the relationship graph for the given entities. A pair
// contributes an entry only if at least one heuristic fires; all firing
// heuristics are kept. The graph is directional: A→B firing does not
// imply B→A fires.
func (d *Detector) Detect(entities []types.Entity) RelationshipGraph {
	graph := RelationshipGraph{}
	if len(entities) < 2 {
		return graph
	}

	for i := range entities {
		a := &entities[i]
		var outgoing map[string][]types.RelationshipRecord

		for j := range entities {
			if i == j {
				continue
			}
			b := &entities[j]

			var records []types.RelationshipRecord
			for _, h := range d.heuristics {
				if rec := h(a, b); rec != nil {
					records = append(records, *rec)
				}
			}
			if len(records) > 0 {
				if outgoing == nil {
					outgoing = map[string][]types.RelationshipRecord{}
				}
				outgoing[b.EntityID] = records
			}
		}

		if outgoing != nil {
			graph[a.EntityID] = outgoing
		}
	}

	return graph
}
