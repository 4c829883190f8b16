package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/facetlabs/facet/pkg/types"
)

func relSet(records ...types.RelationshipRecord) types.RelationshipSet {
	return types.RelationshipSet{Relationships: records, LastUpdated: time.Now().UTC()}
}

func TestSummarizeRelationshipsEmpty(t *testing.T) {
	if got := SummarizeRelationships(nil); got != "No relationships detected between entities." {
		t.Errorf("got %q", got)
	}

	entities := []types.Entity{
		{EntityID: "entity_a", EntityName: "A"},
		{EntityID: "entity_b", EntityName: "B"},
	}
	if got := SummarizeRelationships(entities); got != "No relationships detected between entities." {
		t.Errorf("got %q", got)
	}
}

func TestSummarizeRelationships(t *testing.T) {
	entities := []types.Entity{
		{
			EntityID:   "entity_a",
			EntityName: "Credit Account",
			Relationships: map[string]types.RelationshipSet{
				"entity_b": relSet(types.RelationshipRecord{
					Type:        "relates_to",
					Confidence:  0.8,
					Description: "Shares 1 common attributes: account id",
				}),
			},
		},
		{EntityID: "entity_b", EntityName: "Customer"},
	}

	got := SummarizeRelationships(entities)
	if !strings.HasPrefix(got, "Found 1 relationships across 2 entities:\n") {
		t.Errorf("header wrong: %q", got)
	}
	want := "- 'Credit Account' relates_to 'Customer' (confidence 0.80): Shares 1 common attributes: account id"
	if !strings.Contains(got, want) {
		t.Errorf("missing line %q in %q", want, got)
	}
}

func TestSummarizeRelationshipsLabelsDeletedTargets(t *testing.T) {
	entities := []types.Entity{
		{
			EntityID:   "entity_a",
			EntityName: "Survivor",
			Relationships: map[string]types.RelationshipSet{
				"entity_gone": relSet(types.RelationshipRecord{Type: "relates_to", Confidence: 0.8}),
			},
		},
	}

	got := SummarizeRelationships(entities)
	if !strings.Contains(got, "'entity_gone (deleted)'") {
		t.Errorf("stale edge should name the missing target: %q", got)
	}
}

func TestSummarizeRelationshipsSortsTargets(t *testing.T) {
	entities := []types.Entity{
		{
			EntityID:   "entity_a",
			EntityName: "Hub",
			Relationships: map[string]types.RelationshipSet{
				"entity_z": relSet(types.RelationshipRecord{Type: "relates_to", Confidence: 0.8}),
				"entity_b": relSet(types.RelationshipRecord{Type: "relates_to", Confidence: 0.8}),
			},
		},
		{EntityID: "entity_b", EntityName: "Beta"},
		{EntityID: "entity_z", EntityName: "Zeta"},
	}

	got := SummarizeRelationships(entities)
	beta := strings.Index(got, "'Beta'")
	zeta := strings.Index(got, "'Zeta'")
	if beta == -1 || zeta == -1 || beta > zeta {
		t.Errorf("targets not in sorted order: %q", got)
	}
}
