package engine

import (
	"reflect"
	"testing"

	"github.com/facetlabs/facet/pkg/types"
)

func attrs(names ...string) []types.Attribute {
	out := make([]types.Attribute, 0, len(names))
	for _, n := range names {
		out = append(out, types.Attribute{
			AttributeID:   types.NewAttributeID(),
			AttributeName: n,
			AttributeType: "string",
			Confidence:    0.9,
		})
	}
	return out
}

func TestSharedAttributeHeuristic(t *testing.T) {
	a := &types.Entity{
		EntityID:   "entity_a",
		EntityName: "Credit Account",
		Attributes: attrs("Account ID", "Credit Score"),
	}
	b := &types.Entity{
		EntityID:   "entity_b",
		EntityName: "Customer Profile",
		Attributes: attrs("account id", "Risk Rating"),
	}

	rec := SharedAttributeHeuristic(a, b)
	if rec == nil {
		t.Fatal("expected a relates_to record")
	}
	if rec.Type != RelationshipRelatesTo {
		t.Errorf("type = %q", rec.Type)
	}
	if rec.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", rec.Confidence)
	}
	if !reflect.DeepEqual(rec.SharedAttributes, []string{"account id"}) {
		t.Errorf("shared attributes = %v", rec.SharedAttributes)
	}
	if rec.Description != "Shares 1 common attributes: account id" {
		t.Errorf("description = %q", rec.Description)
	}
}

func TestSharedAttributeHeuristicNoOverlap(t *testing.T) {
	a := &types.Entity{EntityID: "entity_a", Attributes: attrs("one")}
	b := &types.Entity{EntityID: "entity_b", Attributes: attrs("two")}
	if SharedAttributeHeuristic(a, b) != nil {
		t.Error("disjoint attribute sets should not fire")
	}
}

func TestSharedAttributeHeuristicSortedAndTruncated(t *testing.T) {
	a := &types.Entity{EntityID: "entity_a", Attributes: attrs("delta", "bravo", "alpha", "charlie", "echo")}
	b := &types.Entity{EntityID: "entity_b", Attributes: attrs("echo", "charlie", "alpha", "delta", "bravo")}

	rec := SharedAttributeHeuristic(a, b)
	if rec == nil {
		t.Fatal("expected a record")
	}
	want := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	if !reflect.DeepEqual(rec.SharedAttributes, want) {
		t.Errorf("shared attributes not sorted: %v", rec.SharedAttributes)
	}
	if rec.Description != "Shares 5 common attributes: alpha, bravo, charlie" {
		t.Errorf("description should name only the first three: %q", rec.Description)
	}
}

func TestDerivedFromHeuristic(t *testing.T) {
	insight := &types.Entity{
		EntityID:    "entity_i",
		EntityName:  "Utilization Insight",
		EntityType:  types.EntityTypeDerivedInsight,
		SourceField: "Credit Limit and balance history",
	}
	field := &types.Entity{
		EntityID:   "entity_f",
		EntityName: "Credit Limit",
		EntityType: types.EntityTypeField,
	}

	rec := DerivedFromHeuristic(insight, field)
	if rec == nil {
		t.Fatal("expected a derived_from record")
	}
	if rec.Type != RelationshipDerivedFrom || rec.Confidence != 0.9 {
		t.Errorf("record = %+v", rec)
	}
	if rec.SourceEntity != "entity_f" {
		t.Errorf("source_entity = %q", rec.SourceEntity)
	}

	// Direction matters: the field is not derived from the insight.
	if DerivedFromHeuristic(field, insight) != nil {
		t.Error("reverse direction should not fire")
	}
}

func TestDerivedFromHeuristicMatchesEntityValue(t *testing.T) {
	insight := &types.Entity{
		EntityID:    "entity_i",
		EntityType:  types.EntityTypeDerivedInsight,
		SourceField: "monthly average of acct_balance",
	}
	metric := &types.Entity{
		EntityID:    "entity_m",
		EntityType:  types.EntityTypeBusinessMetric,
		EntityName:  "Balance",
		EntityValue: "acct_balance",
	}

	if DerivedFromHeuristic(insight, metric) == nil {
		t.Error("entity_value match should fire")
	}
}

func TestDerivedFromHeuristicEmptyNeedles(t *testing.T) {
	insight := &types.Entity{
		EntityID:    "entity_i",
		EntityType:  types.EntityTypeDerivedInsight,
		SourceField: "something",
	}
	anon := &types.Entity{EntityID: "entity_x", EntityType: types.EntityTypeField}

	// Empty name and value must not match everything.
	if DerivedFromHeuristic(insight, anon) != nil {
		t.Error("empty needles should not fire")
	}
}

func TestDependsOnHeuristic(t *testing.T) {
	a := &types.Entity{
		EntityID:    "entity_a",
		EntityName:  "Risk Score",
		Description: "Calculated from the Credit Score attribute",
	}
	b := &types.Entity{
		EntityID:   "entity_b",
		EntityName: "Credit Account",
		Attributes: attrs("Credit Score"),
	}

	rec := DependsOnHeuristic(a, b)
	if rec == nil {
		t.Fatal("expected a depends_on record")
	}
	if rec.Type != RelationshipDependsOn || rec.Confidence != 0.85 {
		t.Errorf("record = %+v", rec)
	}
	if rec.DependencyReason != "calculated from" {
		t.Errorf("dependency_reason = %q", rec.DependencyReason)
	}
}

func TestDependsOnHeuristicRequiresMention(t *testing.T) {
	a := &types.Entity{
		EntityID:    "entity_a",
		Description: "depends on something unrelated",
	}
	b := &types.Entity{EntityID: "entity_b", EntityName: "Credit Account"}

	if DependsOnHeuristic(a, b) != nil {
		t.Error("keyword without a mention of the other entity should not fire")
	}
}

func TestPartOfHeuristic(t *testing.T) {
	profile := &types.Entity{EntityID: "entity_p", EntityName: "Customer Profile"}
	part := &types.Entity{EntityID: "entity_c", EntityName: "Customer Address"}

	rec := PartOfHeuristic(profile, part)
	if rec == nil {
		t.Fatal("expected a part_of record")
	}
	if rec.Type != RelationshipPartOf || rec.Confidence != 0.7 {
		t.Errorf("record = %+v", rec)
	}
	// The description is inverted: the target is the contained side.
	if rec.Description != "'Customer Address' appears to be part of 'Customer Profile'" {
		t.Errorf("description = %q", rec.Description)
	}
	if rec.HierarchyReason != "naming_pattern" {
		t.Errorf("hierarchical_reason = %q", rec.HierarchyReason)
	}
}

func TestPartOfHeuristicBothProfiles(t *testing.T) {
	a := &types.Entity{EntityID: "entity_a", EntityName: "Customer Profile"}
	b := &types.Entity{EntityID: "entity_b", EntityName: "Customer Risk Profile"}
	if PartOfHeuristic(a, b) != nil {
		t.Error("two profile entities should not fire")
	}
}

func TestDetectOrderedPairs(t *testing.T) {
	entities := []types.Entity{
		{
			EntityID:   "entity_a",
			EntityName: "Credit Account",
			EntityType: types.EntityTypeField,
			Attributes: attrs("Account ID"),
		},
		{
			EntityID:   "entity_b",
			EntityName: "Customer",
			EntityType: types.EntityTypeField,
			Attributes: attrs("Account ID"),
		},
	}

	graph := NewDetector().Detect(entities)

	// Shared attributes fire symmetrically, so both directions exist.
	if len(graph["entity_a"]["entity_b"]) != 1 {
		t.Errorf("a->b records = %v", graph["entity_a"]["entity_b"])
	}
	if len(graph["entity_b"]["entity_a"]) != 1 {
		t.Errorf("b->a records = %v", graph["entity_b"]["entity_a"])
	}
}

func TestDetectFewerThanTwoEntities(t *testing.T) {
	d := NewDetector()

	if g := d.Detect(nil); len(g) != 0 {
		t.Errorf("nil entities: graph = %v", g)
	}
	if g := d.Detect([]types.Entity{{EntityID: "entity_a"}}); len(g) != 0 {
		t.Errorf("single entity: graph = %v", g)
	}
}

func TestDetectNoSelfEdges(t *testing.T) {
	entities := []types.Entity{
		{EntityID: "entity_a", Attributes: attrs("x")},
		{EntityID: "entity_b", Attributes: attrs("x")},
	}

	graph := NewDetector().Detect(entities)
	for id, outgoing := range graph {
		if _, ok := outgoing[id]; ok {
			t.Errorf("entity %s has a self edge", id)
		}
	}
}

func TestDetectMultipleHeuristicsOnOnePair(t *testing.T) {
	a := types.Entity{
		EntityID:    "entity_a",
		EntityName:  "Utilization Insight",
		EntityType:  types.EntityTypeDerivedInsight,
		SourceField: "credit limit",
		Description: "derived from the credit limit field",
		Attributes:  attrs("Period"),
	}
	b := types.Entity{
		EntityID:   "entity_b",
		EntityName: "Credit Limit",
		EntityType: types.EntityTypeField,
		Attributes: attrs("Period"),
	}

	graph := NewDetector().Detect([]types.Entity{a, b})
	records := graph["entity_a"]["entity_b"]
	if len(records) != 3 {
		t.Fatalf("expected relates_to, derived_from, and depends_on, got %+v", records)
	}

	seen := map[string]bool{}
	for _, rec := range records {
		seen[rec.Type] = true
	}
	for _, want := range []string{RelationshipRelatesTo, RelationshipDerivedFrom, RelationshipDependsOn} {
		if !seen[want] {
			t.Errorf("missing %s record", want)
		}
	}
}

func TestDetectDeterministic(t *testing.T) {
	entities := []types.Entity{
		{EntityID: "entity_a", EntityName: "Customer Profile", Attributes: attrs("id", "name", "email", "phone")},
		{EntityID: "entity_b", EntityName: "Customer Address", Attributes: attrs("phone", "email", "id", "name")},
	}

	first := NewDetector().Detect(entities)
	for i := 0; i < 5; i++ {
		if again := NewDetector().Detect(entities); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%v\nvs\n%v", i, first, again)
		}
	}
}

func TestDetectorWithCustomHeuristic(t *testing.T) {
	always := func(a, b *types.Entity) *types.RelationshipRecord {
		return &types.RelationshipRecord{Type: "custom", Confidence: 1}
	}

	graph := NewDetectorWith(always).Detect([]types.Entity{
		{EntityID: "entity_a"},
		{EntityID: "entity_b"},
	})

	if len(graph["entity_a"]["entity_b"]) != 1 || graph["entity_a"]["entity_b"][0].Type != "custom" {
		t.Errorf("custom heuristic not applied: %v", graph)
	}
}
