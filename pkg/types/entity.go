package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityType is the closed tag set for entities. Unknown tags are rejected
// at the API boundary rather than silently dropped.
type EntityType string

const (
	EntityTypeField           EntityType = "field"
	EntityTypeBusinessMetric  EntityType = "business_metric"
	EntityTypeRelationship    EntityType = "relationship"
	EntityTypeDerivedInsight  EntityType = "derived_insight"
	EntityTypeOperationalRule EntityType = "operational_rule"
	EntityTypeDataAsset       EntityType = "data_asset"
	EntityTypeSegment         EntityType = "segment"
	EntityTypeMetadata        EntityType = "metadata"
	EntityTypeValue           EntityType = "value"
	EntityTypeColumn          EntityType = "column"
	EntityTypeAsset           EntityType = "asset"
)

var validEntityTypes = map[EntityType]bool{
	EntityTypeField:           true,
	EntityTypeBusinessMetric:  true,
	EntityTypeRelationship:    true,
	EntityTypeDerivedInsight:  true,
	EntityTypeOperationalRule: true,
	EntityTypeDataAsset:       true,
	EntityTypeSegment:         true,
	EntityTypeMetadata:        true,
	EntityTypeValue:           true,
	EntityTypeColumn:          true,
	EntityTypeAsset:           true,
}

// ParseEntityType validates a raw tag against the closed set.
func ParseEntityType(s string) (EntityType, error) {
	et := EntityType(s)
	if !validEntityTypes[et] {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return et, nil
}

// IsValid reports whether the tag is a member of the closed set.
func (t EntityType) IsValid() bool {
	return validEntityTypes[t]
}

// Attribute is a scoped sub-field of an entity carrying its own value,
// type tag, and confidence. Attribute ids are unique within the owning
// entity only.
type Attribute struct {
	AttributeID    string                 `json:"attribute_id"`
	AttributeName  string                 `json:"attribute_name"`
	AttributeValue interface{}            `json:"attribute_value"`
	AttributeType  string                 `json:"attribute_type"` // string, number, boolean, object
	Confidence     float64                `json:"confidence"`
	SourceField    string                 `json:"source_field,omitempty"`
	Description    string                 `json:"description,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// RelationshipRecord is a directed, typed, confidence-scored edge produced
// by the relationship detector.
type RelationshipRecord struct {
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`

	// Heuristic-specific context. At most one group is set per record.
	SharedAttributes []string `json:"shared_attributes,omitempty"`
	SourceEntity     string   `json:"source_entity,omitempty"`
	DependencyReason string   `json:"dependency_reason,omitempty"`
	HierarchyReason  string   `json:"hierarchical_reason,omitempty"`
}

// RelationshipSet holds every detected edge from one entity to a single
// target, together with the detection timestamp.
type RelationshipSet struct {
	Relationships []RelationshipRecord `json:"relationships"`
	LastUpdated   time.Time            `json:"last_updated"`
}

// Entity is a named, typed record representing one extracted business
// concept, scoped to a session. The Relationships map is written only by
// the relationship detector; edges may reference entity ids that have
// since been deleted (stale until the next full recomputation).
type Entity struct {
	EntityID        string                     `json:"entity_id"`
	SessionID       string                     `json:"session_id"`
	EntityType      EntityType                 `json:"entity_type"`
	EntityName      string                     `json:"entity_name"`
	EntityValue     string                     `json:"entity_value"`
	Confidence      float64                    `json:"confidence"`
	SourceField     string                     `json:"source_field,omitempty"`
	Description     string                     `json:"description,omitempty"`
	Relationships   map[string]RelationshipSet `json:"relationships"`
	ContextProvider string                     `json:"context_provider,omitempty"`
	Attributes      []Attribute                `json:"attributes"`
	Metadata        map[string]interface{}     `json:"metadata,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
	CreatedBy       string                     `json:"created_by"` // system, user, llm
	Version         int                        `json:"version"`
}

// NewEntityID returns a fresh short-hex entity id.
func NewEntityID() string {
	return "entity_" + uuid.New().String()[:8]
}

// NewAttributeID returns a fresh short-hex attribute id.
func NewAttributeID() string {
	return "attr_" + uuid.New().String()[:8]
}

// Attribute looks up an attribute by id. Returns nil when absent.
func (e *Entity) Attribute(attributeID string) *Attribute {
	for i := range e.Attributes {
		if e.Attributes[i].AttributeID == attributeID {
			return &e.Attributes[i]
		}
	}
	return nil
}

// ClampConfidence forces a confidence score into [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
