package types

import "time"

// CollectionDocument is the single per-session container holding all of
// that session's entities. Every mutation loads the whole document,
// changes it in memory, and writes the whole document back; there is no
// field-level persistence.
type CollectionDocument struct {
	SessionID         string                 `json:"session_id"`
	Entities          []Entity               `json:"entities"`
	TotalEntities     int                    `json:"total_entities"`
	LastEntityCreated *time.Time             `json:"last_entity_created,omitempty"`
	LastEntityUpdated *time.Time             `json:"last_entity_updated,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// NewCollectionDocument creates an empty document for a session.
func NewCollectionDocument(sessionID string, now time.Time) *CollectionDocument {
	return &CollectionDocument{
		SessionID: sessionID,
		Entities:  []Entity{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Entity looks up an entity by id. Returns nil when absent.
func (d *CollectionDocument) Entity(entityID string) *Entity {
	for i := range d.Entities {
		if d.Entities[i].EntityID == entityID {
			return &d.Entities[i]
		}
	}
	return nil
}

// Touch restores the document-level invariants before a save:
// total_entities tracks the entity list, the last-created/last-updated
// markers hold the max of the entity timestamps (or the document's own
// creation time when no entities exist), and updated_at is set to now.
func (d *CollectionDocument) Touch(now time.Time) {
	d.UpdatedAt = now
	d.TotalEntities = len(d.Entities)

	if len(d.Entities) == 0 {
		created := d.CreatedAt
		d.LastEntityCreated = &created
		d.LastEntityUpdated = &created
		return
	}

	lastCreated := d.Entities[0].CreatedAt
	lastUpdated := d.Entities[0].UpdatedAt
	for _, e := range d.Entities[1:] {
		if e.CreatedAt.After(lastCreated) {
			lastCreated = e.CreatedAt
		}
		if e.UpdatedAt.After(lastUpdated) {
			lastUpdated = e.UpdatedAt
		}
	}
	d.LastEntityCreated = &lastCreated
	d.LastEntityUpdated = &lastUpdated
}
