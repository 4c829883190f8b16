package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/facetlabs/facet/internal/storage"
	"github.com/facetlabs/facet/pkg/types"
)

// saveRetries bounds the optimistic-concurrency retry loop. A mutation
// that keeps losing the revision race this many times is reported as a
// failure instead of spinning.
const saveRetries = 3

var (
	errEntityNotFound  = errors.New("entity not found")
	errTooFewEntities  = errors.New("not enough entities for detection")
	errInvalidTypeEdit = errors.New("invalid entity type in update")
)

// Manager exposes CRUD operations over one session's collection document,
// maintains its invariants, and triggers relationship detection whenever
// the entity set could have changed relationships.
//
// Every mutation is a full read-modify-write: load the whole document,
// change it in memory, save the whole document back with a
// compare-and-swap on the store revision. Lost races reload and reapply.
type Manager struct {
	store    storage.DocumentStore
	detector *Detector
	now      func() time.Time
}

// NewManager creates a manager with the built-in relationship detector.
func NewManager(store storage.DocumentStore) *Manager {
	return &Manager{
		store:    store,
		detector: NewDetector(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewManagerWithDetector creates a manager with a custom detector.
func NewManagerWithDetector(store storage.DocumentStore, detector *Detector) *Manager {
	m := NewManager(store)
	m.detector = detector
	return m
}

// mutate runs one read-modify-write cycle with bounded optimistic retry.
// fn mutates the loaded document in place; returning an error aborts
// without saving. When createIfMissing is set an unknown session starts
// from an empty document.
func (m *Manager) mutate(ctx context.Context, sessionID string, createIfMissing bool, fn func(doc *types.CollectionDocument) error) (*types.CollectionDocument, error) {
	for attempt := 0; attempt < saveRetries; attempt++ {
		doc, revision, err := m.store.Get(ctx, sessionID)
		if errors.Is(err, storage.ErrNotFound) {
			if !createIfMissing {
				return nil, storage.ErrNotFound
			}
			doc = types.NewCollectionDocument(sessionID, m.now())
			revision = 0
		} else if err != nil {
			return nil, err
		}

		if err := fn(doc); err != nil {
			return nil, err
		}

		doc.Touch(m.now())
		if _, err := m.store.Set(ctx, sessionID, doc, revision); err != nil {
			if errors.Is(err, storage.ErrRevisionMismatch) {
				log.Printf("engine: revision race on session %s, retrying (%d/%d)", sessionID, attempt+1, saveRetries)
				continue
			}
			return nil, err
		}
		return doc, nil
	}
	return nil, fmt.Errorf("session %s: gave up after %d revision conflicts", sessionID, saveRetries)
}

// CreateEntities builds and appends a batch of entities to the session's
// document. Specs with an unknown entity type are rejected individually
// and reported in the message; the rest of the batch proceeds. When the
// document holds two or more entities afterwards, the relationship graph
// is recomputed from scratch over the whole entity list.
func (m *Manager) CreateEntities(ctx context.Context, req types.CreateEntitiesRequest) types.CreateEntitiesResponse {
	var created []types.Entity
	var skipped []string

	_, err := m.mutate(ctx, req.SessionID, true, func(doc *types.CollectionDocument) error {
		created = created[:0]
		skipped = skipped[:0]

		for _, spec := range req.EntitiesData {
			entity, buildErr := m.buildEntity(req.SessionID, spec)
			if buildErr != nil {
				log.Printf("engine: rejecting entity %q: %v", spec.EntityName, buildErr)
				skipped = append(skipped, fmt.Sprintf("%s (%v)", spec.EntityName, buildErr))
				continue
			}
			doc.Entities = append(doc.Entities, *entity)
			created = append(created, *entity)
		}

		if len(doc.Entities) > 1 {
			m.applyRelationships(doc)
			// Keep the returned copies in sync with the detected edges.
			for i := range created {
				if e := doc.Entity(created[i].EntityID); e != nil {
					created[i] = *e
				}
			}
		}
		return nil
	})
	if err != nil {
		return types.CreateEntitiesResponse{
			CreatedEntities: []types.Entity{},
			SessionID:       req.SessionID,
			Success:         false,
			Message:         fmt.Sprintf("Failed to save entities: %v", err),
		}
	}

	msg := fmt.Sprintf("Successfully created %d entities", len(created))
	if len(skipped) > 0 {
		msg += fmt.Sprintf("; rejected %d invalid: %s", len(skipped), strings.Join(skipped, "; "))
	}
	return types.CreateEntitiesResponse{
		CreatedEntities: created,
		TotalCreated:    len(created),
		SessionID:       req.SessionID,
		Success:         true,
		Message:         msg,
	}
}

// buildEntity validates one entity spec and constructs the entity with
// fresh ids and version 1.
func (m *Manager) buildEntity(sessionID string, spec types.EntitySpec) (*types.Entity, error) {
	entityType, err := types.ParseEntityType(spec.EntityType)
	if err != nil {
		return nil, err
	}

	now := m.now()
	attributes := make([]types.Attribute, 0, len(spec.Attributes))
	for _, attrSpec := range spec.Attributes {
		attributes = append(attributes, buildAttribute(attrSpec, now))
	}

	confidence := 0.8
	if spec.Confidence != nil {
		confidence = types.ClampConfidence(*spec.Confidence)
	}
	contextProvider := spec.ContextProvider
	if contextProvider == "" {
		contextProvider = "credit_domain"
	}
	createdBy := spec.CreatedBy
	if createdBy == "" {
		createdBy = "system"
	}

	return &types.Entity{
		EntityID:        types.NewEntityID(),
		SessionID:       sessionID,
		EntityType:      entityType,
		EntityName:      spec.EntityName,
		EntityValue:     spec.EntityValue,
		Confidence:      confidence,
		SourceField:     spec.SourceField,
		Description:     spec.Description,
		Relationships:   map[string]types.RelationshipSet{},
		ContextProvider: contextProvider,
		Attributes:      attributes,
		Metadata:        spec.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       createdBy,
		Version:         1,
	}, nil
}

func buildAttribute(spec types.AttributeSpec, now time.Time) types.Attribute {
	attrType := spec.AttributeType
	if attrType == "" {
		attrType = "string"
	}
	confidence := 0.8
	if spec.Confidence != nil {
		confidence = types.ClampConfidence(*spec.Confidence)
	}
	return types.Attribute{
		AttributeID:    types.NewAttributeID(),
		AttributeName:  spec.AttributeName,
		AttributeValue: spec.AttributeValue,
		AttributeType:  attrType,
		Confidence:     confidence,
		SourceField:    spec.SourceField,
		Description:    spec.Description,
		Metadata:       spec.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// applyRelationships recomputes the whole graph and replaces every
// entity's relationships map with the result. Entities with no outgoing
// edges end up with an empty map.
func (m *Manager) applyRelationships(doc *types.CollectionDocument) {
	graph := m.detector.Detect(doc.Entities)
	now := m.now()

	for i := range doc.Entities {
		entity := &doc.Entities[i]
		outgoing := graph[entity.EntityID]
		entity.Relationships = make(map[string]types.RelationshipSet, len(outgoing))
		for targetID, records := range outgoing {
			entity.Relationships[targetID] = types.RelationshipSet{
				Relationships: records,
				LastUpdated:   now,
			}
		}
	}
}

// ReadEntities returns one page of a session's entities. Reads never
// mutate or re-save the document and never re-run detection.
func (m *Manager) ReadEntities(ctx context.Context, req types.ReadEntitiesRequest) types.ReadEntitiesResponse {
	doc, _, err := m.store.Get(ctx, req.SessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return types.ReadEntitiesResponse{
			Entities:  []types.Entity{},
			SessionID: req.SessionID,
			Success:   false,
			Message:   "Session not found",
		}
	}
	if err != nil {
		return types.ReadEntitiesResponse{
			Entities:  []types.Entity{},
			SessionID: req.SessionID,
			Success:   false,
			Message:   fmt.Sprintf("Failed to read entities: %v", err),
		}
	}

	filtered := doc.Entities
	if req.EntityID != "" {
		filtered = filterEntities(filtered, func(e *types.Entity) bool {
			return e.EntityID == req.EntityID
		})
	}
	if req.EntityType != "" {
		filtered = filterEntities(filtered, func(e *types.Entity) bool {
			return e.EntityType == req.EntityType
		})
	}

	totalCount := len(filtered)
	page := paginate(filtered, req.Offset, req.Limit)

	return types.ReadEntitiesResponse{
		Entities:   page,
		TotalCount: totalCount,
		SessionID:  req.SessionID,
		Success:    true,
		Message:    fmt.Sprintf("Successfully retrieved %d entities", len(page)),
	}
}

func filterEntities(entities []types.Entity, keep func(*types.Entity) bool) []types.Entity {
	out := make([]types.Entity, 0, len(entities))
	for i := range entities {
		if keep(&entities[i]) {
			out = append(out, entities[i])
		}
	}
	return out
}

// paginate applies offset/limit. An offset past the end yields an empty
// page, not an error. A non-positive limit falls back to 100.
func paginate(entities []types.Entity, offset, limit int) []types.Entity {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entities) {
		return []types.Entity{}
	}
	end := offset + limit
	if end > len(entities) {
		end = len(entities)
	}
	page := make([]types.Entity, end-offset)
	copy(page, entities[offset:end])
	return page
}

// UpdateEntity applies field and attribute updates to one entity, bumping
// its version by exactly one on success. A missing session or entity is a
// normal failure result; no entity is implicitly created.
func (m *Manager) UpdateEntity(ctx context.Context, req types.UpdateEntityRequest) types.UpdateEntityResponse {
	var updated types.Entity

	_, err := m.mutate(ctx, req.SessionID, false, func(doc *types.CollectionDocument) error {
		entity := doc.Entity(req.EntityID)
		if entity == nil {
			return errEntityNotFound
		}

		if err := applyEntityUpdates(entity, req.EntityUpdates); err != nil {
			return err
		}
		m.applyAttributeUpdates(entity, req.AttributeUpdates)

		entity.UpdatedAt = m.now()
		entity.Version++
		updated = *entity
		return nil
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return types.UpdateEntityResponse{SessionID: req.SessionID, Success: false, Message: "Session not found"}
	case errors.Is(err, errEntityNotFound):
		return types.UpdateEntityResponse{SessionID: req.SessionID, Success: false, Message: "Entity not found"}
	case errors.Is(err, errInvalidTypeEdit):
		return types.UpdateEntityResponse{SessionID: req.SessionID, Success: false, Message: err.Error()}
	case err != nil:
		return types.UpdateEntityResponse{
			SessionID: req.SessionID,
			Success:   false,
			Message:   fmt.Sprintf("Failed to update entity: %v", err),
		}
	}

	return types.UpdateEntityResponse{
		UpdatedEntity: &updated,
		SessionID:     req.SessionID,
		Success:       true,
		Message:       "Entity updated successfully",
	}
}

// applyEntityUpdates overwrites mutable entity fields named by their JSON
// keys. Unknown keys and ill-typed values are ignored; entity_id,
// session_id, and created_at are never written. An entity_type value
// outside the closed set fails the update.
func applyEntityUpdates(entity *types.Entity, updates map[string]interface{}) error {
	for key, value := range updates {
		switch key {
		case "entity_name":
			if s, ok := value.(string); ok {
				entity.EntityName = s
			}
		case "entity_type":
			s, ok := value.(string)
			if !ok {
				continue
			}
			entityType, err := types.ParseEntityType(s)
			if err != nil {
				return fmt.Errorf("%w: %v", errInvalidTypeEdit, err)
			}
			entity.EntityType = entityType
		case "entity_value":
			if s, ok := value.(string); ok {
				entity.EntityValue = s
			}
		case "confidence":
			if f, ok := value.(float64); ok {
				entity.Confidence = types.ClampConfidence(f)
			}
		case "source_field":
			if s, ok := value.(string); ok {
				entity.SourceField = s
			}
		case "description":
			if s, ok := value.(string); ok {
				entity.Description = s
			}
		case "context_provider":
			if s, ok := value.(string); ok {
				entity.ContextProvider = s
			}
		case "created_by":
			if s, ok := value.(string); ok {
				entity.CreatedBy = s
			}
		case "metadata":
			if md, ok := value.(map[string]interface{}); ok {
				entity.Metadata = md
			}
		}
	}
	return nil
}

// applyAttributeUpdates handles the two attribute update shapes: items
// carrying an attribute_id overwrite the matching attribute (unmatched
// ids are silently ignored), items without one append a new attribute.
func (m *Manager) applyAttributeUpdates(entity *types.Entity, updates []types.AttributeSpec) {
	now := m.now()
	for _, spec := range updates {
		if spec.AttributeID == "" {
			entity.Attributes = append(entity.Attributes, buildAttribute(spec, now))
			continue
		}

		attr := entity.Attribute(spec.AttributeID)
		if attr == nil {
			continue
		}
		if spec.AttributeName != "" {
			attr.AttributeName = spec.AttributeName
		}
		if spec.AttributeValue != nil {
			attr.AttributeValue = spec.AttributeValue
		}
		if spec.AttributeType != "" {
			attr.AttributeType = spec.AttributeType
		}
		if spec.Confidence != nil {
			attr.Confidence = types.ClampConfidence(*spec.Confidence)
		}
		if spec.SourceField != "" {
			attr.SourceField = spec.SourceField
		}
		if spec.Description != "" {
			attr.Description = spec.Description
		}
		if spec.Metadata != nil {
			attr.Metadata = spec.Metadata
		}
		attr.UpdatedAt = now
	}
}

// DeleteEntities removes whole entities, named attributes of one entity,
// or everything in the session. With no mode selected the call is a no-op
// that still reports success. Relationship edges pointing at deleted
// entities are left stale until the next full recomputation.
func (m *Manager) DeleteEntities(ctx context.Context, req types.DeleteEntitiesRequest) types.DeleteEntitiesResponse {
	var deletedEntities, deletedAttributes []string

	_, err := m.mutate(ctx, req.SessionID, false, func(doc *types.CollectionDocument) error {
		deletedEntities = deletedEntities[:0]
		deletedAttributes = deletedAttributes[:0]

		switch {
		case req.DeleteAll:
			for _, e := range doc.Entities {
				deletedEntities = append(deletedEntities, e.EntityID)
			}
			doc.Entities = []types.Entity{}

		case req.EntityID != "" && len(req.AttributeIDs) > 0:
			entity := doc.Entity(req.EntityID)
			if entity == nil {
				return nil
			}
			requested := make(map[string]bool, len(req.AttributeIDs))
			for _, id := range req.AttributeIDs {
				requested[id] = true
			}
			kept := entity.Attributes[:0]
			for _, attr := range entity.Attributes {
				if requested[attr.AttributeID] {
					deletedAttributes = append(deletedAttributes, attr.AttributeID)
					continue
				}
				kept = append(kept, attr)
			}
			entity.Attributes = kept
			entity.UpdatedAt = m.now()

		case req.EntityID != "":
			kept := doc.Entities[:0]
			for _, e := range doc.Entities {
				if e.EntityID == req.EntityID {
					deletedEntities = append(deletedEntities, e.EntityID)
					continue
				}
				kept = append(kept, e)
			}
			doc.Entities = kept
		}
		return nil
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return types.DeleteEntitiesResponse{
			DeletedEntities:   []string{},
			DeletedAttributes: []string{},
			SessionID:         req.SessionID,
			Success:           false,
			Message:           "Session not found",
		}
	case err != nil:
		return types.DeleteEntitiesResponse{
			DeletedEntities:   []string{},
			DeletedAttributes: []string{},
			SessionID:         req.SessionID,
			Success:           false,
			Message:           fmt.Sprintf("Failed to delete entities: %v", err),
		}
	}

	if deletedEntities == nil {
		deletedEntities = []string{}
	}
	if deletedAttributes == nil {
		deletedAttributes = []string{}
	}
	total := len(deletedEntities) + len(deletedAttributes)
	return types.DeleteEntitiesResponse{
		DeletedEntities:   deletedEntities,
		DeletedAttributes: deletedAttributes,
		TotalDeleted:      total,
		SessionID:         req.SessionID,
		Success:           true,
		Message:           fmt.Sprintf("Successfully deleted %d items", total),
	}
}

// DetectRelationships recomputes the relationship graph for a session on
// demand. Returns false without error when the session holds fewer than
// two entities.
func (m *Manager) DetectRelationships(ctx context.Context, sessionID string) (bool, error) {
	_, err := m.mutate(ctx, sessionID, false, func(doc *types.CollectionDocument) error {
		if len(doc.Entities) < 2 {
			return errTooFewEntities
		}
		m.applyRelationships(doc)
		return nil
	})
	if errors.Is(err, errTooFewEntities) || errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RelationshipSummary renders a readable summary of the session's stored
// relationship graph.
func (m *Manager) RelationshipSummary(ctx context.Context, sessionID string) (string, error) {
	doc, _, err := m.store.Get(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return "No relationships detected between entities.", nil
	}
	if err != nil {
		return "", err
	}
	return SummarizeRelationships(doc.Entities), nil
}

// EntityIDs returns the session's entity ids in name order. Used by the
// similarity service to prune stale embeddings.
func (m *Manager) EntityIDs(ctx context.Context, sessionID string) ([]string, error) {
	doc, _, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(doc.Entities))
	for _, e := range doc.Entities {
		ids = append(ids, e.EntityID)
	}
	sort.Strings(ids)
	return ids, nil
}
