package types

// AttributeSpec is the caller-supplied shape for one attribute in a create
// or update request.
type AttributeSpec struct {
	AttributeID    string                 `json:"attribute_id,omitempty"`
	AttributeName  string                 `json:"attribute_name"`
	AttributeValue interface{}            `json:"attribute_value"`
	AttributeType  string                 `json:"attribute_type,omitempty"`
	Confidence     *float64               `json:"confidence,omitempty"`
	SourceField    string                 `json:"source_field,omitempty"`
	Description    string                 `json:"description,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EntitySpec is the caller-supplied shape for one entity in a create
// request. Entity and attribute ids are always generated server-side.
type EntitySpec struct {
	EntityName      string                 `json:"entity_name"`
	EntityType      string                 `json:"entity_type"`
	EntityValue     string                 `json:"entity_value"`
	Confidence      *float64               `json:"confidence,omitempty"`
	SourceField     string                 `json:"source_field,omitempty"`
	Description     string                 `json:"description,omitempty"`
	ContextProvider string                 `json:"context_provider,omitempty"`
	Attributes      []AttributeSpec        `json:"attributes,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedBy       string                 `json:"created_by,omitempty"`
}

// CreateEntitiesRequest creates a batch of entities in one session.
type CreateEntitiesRequest struct {
	SessionID    string       `json:"session_id"`
	EntitiesData []EntitySpec `json:"entities_data"`
}

// CreateEntitiesResponse reports the created subset of the batch. Entity
// specs with an unknown type are rejected individually (listed in Message)
// without failing the rest of the batch.
type CreateEntitiesResponse struct {
	CreatedEntities []Entity `json:"created_entities"`
	TotalCreated    int      `json:"total_created"`
	SessionID       string   `json:"session_id"`
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
}

// ReadEntitiesRequest reads entities with optional filters and pagination.
type ReadEntitiesRequest struct {
	SessionID  string     `json:"session_id"`
	EntityID   string     `json:"entity_id,omitempty"`
	EntityType EntityType `json:"entity_type,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}

// ReadEntitiesResponse returns one page plus the pre-pagination filtered
// count as TotalCount.
type ReadEntitiesResponse struct {
	Entities   []Entity `json:"entities"`
	TotalCount int      `json:"total_count"`
	SessionID  string   `json:"session_id"`
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
}

// UpdateEntityRequest updates one entity's fields and/or attributes.
// EntityUpdates keys name entity fields (json names); unknown keys are
// ignored, protected keys (entity_id, session_id, created_at) are never
// written. AttributeUpdates items with an attribute_id overwrite the
// matching attribute; items without one append a new attribute.
type UpdateEntityRequest struct {
	SessionID        string                 `json:"session_id"`
	EntityID         string                 `json:"entity_id"`
	EntityUpdates    map[string]interface{} `json:"entity_updates,omitempty"`
	AttributeUpdates []AttributeSpec        `json:"attribute_updates,omitempty"`
}

// UpdateEntityResponse returns the updated entity on success.
type UpdateEntityResponse struct {
	UpdatedEntity *Entity `json:"updated_entity,omitempty"`
	SessionID     string  `json:"session_id"`
	Success       bool    `json:"success"`
	Message       string  `json:"message"`
}

// DeleteEntitiesRequest deletes a whole session's entities (DeleteAll),
// one entity (EntityID), or named attributes of one entity (EntityID +
// AttributeIDs). With none of the three set the call is a no-op that
// still reports success.
type DeleteEntitiesRequest struct {
	SessionID    string   `json:"session_id"`
	EntityID     string   `json:"entity_id,omitempty"`
	AttributeIDs []string `json:"attribute_ids,omitempty"`
	DeleteAll    bool     `json:"delete_all,omitempty"`
}

// DeleteEntitiesResponse lists what was actually removed. Ids that were
// not present are simply absent from the deleted lists.
type DeleteEntitiesResponse struct {
	DeletedEntities   []string `json:"deleted_entities"`
	DeletedAttributes []string `json:"deleted_attributes"`
	TotalDeleted      int      `json:"total_deleted"`
	SessionID         string   `json:"session_id"`
	Success           bool     `json:"success"`
	Message           string   `json:"message"`
}

// ChatRequest is one conversational turn addressed to the agent.
// SelectedFields and SelectedColumns carry the caller's tabular context
// (domain field descriptors and asset column descriptors).
type ChatRequest struct {
	Message         string                   `json:"message"`
	SessionID       string                   `json:"session_id"`
	SelectedFields  []map[string]interface{} `json:"selected_fields,omitempty"`
	SelectedColumns []map[string]interface{} `json:"selected_columns,omitempty"`
}

// ChatResponse is the agent's reply for one turn.
type ChatResponse struct {
	Response        string   `json:"response"`
	Success         bool     `json:"success"`
	EntitiesCreated int      `json:"entities_created"`
	Entities        []Entity `json:"entities"`
}
