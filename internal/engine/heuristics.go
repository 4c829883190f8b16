package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/facetlabs/facet/pkg/types"
)

// dependencyKeywords are the phrases that signal a depends-on relationship
// when found in an entity's description.
var dependencyKeywords = []string{
	"depends on",
	"based on",
	"calculated from",
	"derived from",
	"uses data from",
}

// derivedSourceTypes are the entity types a derived_insight can be derived
// from.
var derivedSourceTypes = map[types.EntityType]bool{
	types.EntityTypeField:          true,
	types.EntityTypeAsset:          true,
	types.EntityTypeBusinessMetric: true,
}

// SharedAttributeHeuristic fires when two entities share attribute names
// (case-insensitive). The shared list is sorted so repeated runs produce
// identical records.
func SharedAttributeHeuristic(a, b *types.Entity) *types.RelationshipRecord {
	names := map[string]bool{}
	for _, attr := range a.Attributes {
		if n := strings.ToLower(attr.AttributeName); n != "" {
			names[n] = true
		}
	}
	if len(names) == 0 {
		return nil
	}

	sharedSet := map[string]bool{}
	for _, attr := range b.Attributes {
		if n := strings.ToLower(attr.AttributeName); n != "" && names[n] {
			sharedSet[n] = true
		}
	}
	if len(sharedSet) == 0 {
		return nil
	}

	shared := make([]string, 0, len(sharedSet))
	for n := range sharedSet {
		shared = append(shared, n)
	}
	sort.Strings(shared)

	preview := shared
	if len(preview) > 3 {
		preview = preview[:3]
	}

	return &types.RelationshipRecord{
		Type:             RelationshipRelatesTo,
		Confidence:       0.8,
		Description:      fmt.Sprintf("Shares %d common attributes: %s", len(shared), strings.Join(preview, ", ")),
		SharedAttributes: shared,
	}
}

// DerivedFromHeuristic fires when a derived_insight entity's source field
// references the name or value of a field, asset, or business metric.
func DerivedFromHeuristic(a, b *types.Entity) *types.RelationshipRecord {
	if a.EntityType != types.EntityTypeDerivedInsight || !derivedSourceTypes[b.EntityType] {
		return nil
	}

	source := strings.ToLower(a.SourceField)
	if source == "" {
		return nil
	}

	for _, needle := range []string{strings.ToLower(b.EntityName), strings.ToLower(b.EntityValue)} {
		if needle != "" && strings.Contains(source, needle) {
			return &types.RelationshipRecord{
				Type:         RelationshipDerivedFrom,
				Confidence:   0.9,
				Description:  fmt.Sprintf("'%s' is derived from data in '%s'", a.EntityName, b.EntityName),
				SourceEntity: b.EntityID,
			}
		}
	}
	return nil
}

// DependsOnHeuristic fires when an entity's description contains a
// dependency phrase together with the other entity's name or one of its
// attribute names.
func DependsOnHeuristic(a, b *types.Entity) *types.RelationshipRecord {
	desc := strings.ToLower(a.Description)
	if desc == "" {
		return nil
	}

	for _, keyword := range dependencyKeywords {
		if !strings.Contains(desc, keyword) {
			continue
		}
		if mentionsEntity(desc, b) {
			return &types.RelationshipRecord{
				Type:             RelationshipDependsOn,
				Confidence:       0.85,
				Description:      fmt.Sprintf("'%s' depends on data from '%s'", a.EntityName, b.EntityName),
				DependencyReason: keyword,
			}
		}
	}
	return nil
}

// mentionsEntity reports whether desc contains the entity's name or any of
// its attribute names (all lower-cased, empty needles skipped).
func mentionsEntity(desc string, e *types.Entity) bool {
	if name := strings.ToLower(e.EntityName); name != "" && strings.Contains(desc, name) {
		return true
	}
	for _, attr := range e.Attributes {
		if n := strings.ToLower(attr.AttributeName); n != "" && strings.Contains(desc, n) {
			return true
		}
	}
	return false
}

// PartOfHeuristic fires on naming patterns: when A's name mentions
// "profile", B's doesn't, and a significant word from A's name appears in
// B's name, B is reported as part of A. Unlike the other heuristics the
// record describes the target as the contained side.
func PartOfHeuristic(a, b *types.Entity) *types.RelationshipRecord {
	nameA := strings.ToLower(a.EntityName)
	nameB := strings.ToLower(b.EntityName)

	if !strings.Contains(nameA, "profile") || strings.Contains(nameB, "profile") {
		return nil
	}

	for _, word := range strings.Fields(nameA) {
		if len(word) > 3 && strings.Contains(nameB, word) {
			return &types.RelationshipRecord{
				Type:            RelationshipPartOf,
				Confidence:      0.7,
				Description:     fmt.Sprintf("'%s' appears to be part of '%s'", b.EntityName, a.EntityName),
				HierarchyReason: "naming_pattern",
			}
		}
	}
	return nil
}
