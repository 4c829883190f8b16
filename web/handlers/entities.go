package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/facetlabs/facet/internal/engine"
	"github.com/facetlabs/facet/internal/storage"
	"github.com/facetlabs/facet/pkg/types"
)

// EntityHandlers contains HTTP handlers for the entity CRUD API.
type EntityHandlers struct {
	manager    *engine.Manager
	similarity *engine.SimilarityService // nil when embeddings are disabled
	hub        *WebSocketHub             // nil in tests
}

// NewEntityHandlers creates entity handlers. similarity and hub may be nil.
func NewEntityHandlers(manager *engine.Manager, similarity *engine.SimilarityService, hub *WebSocketHub) *EntityHandlers {
	return &EntityHandlers{manager: manager, similarity: similarity, hub: hub}
}

// CreateEntities handles POST /api/entities.
func (h *EntityHandlers) CreateEntities(w http.ResponseWriter, r *http.Request) {
	var req types.CreateEntitiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required", nil)
		return
	}
	if len(req.EntitiesData) == 0 {
		respondError(w, http.StatusBadRequest, "entities_data is required", nil)
		return
	}

	result := h.manager.CreateEntities(r.Context(), req)
	if result.Success && result.TotalCreated > 0 {
		if h.similarity != nil {
			h.similarity.IndexEntities(r.Context(), req.SessionID, result.CreatedEntities)
		}
		h.broadcast("entities_created", req.SessionID, entityIDs(result.CreatedEntities))
	}

	status := http.StatusCreated
	if !result.Success {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, result)
}

// ReadEntities handles GET /api/entities with query parameters
// session_id, entity_id, entity_type, limit, and offset.
func (h *EntityHandlers) ReadEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required", nil)
		return
	}

	result := h.manager.ReadEntities(r.Context(), types.ReadEntitiesRequest{
		SessionID:  sessionID,
		EntityID:   q.Get("entity_id"),
		EntityType: types.EntityType(q.Get("entity_type")),
		Limit:      parseInt(q.Get("limit"), 0),
		Offset:     parseInt(q.Get("offset"), 0),
	})
	if !result.Success {
		respondJSON(w, http.StatusNotFound, result)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// UpdateEntity handles PUT /api/entities.
func (h *EntityHandlers) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.SessionID == "" || req.EntityID == "" {
		respondError(w, http.StatusBadRequest, "session_id and entity_id are required", nil)
		return
	}

	result := h.manager.UpdateEntity(r.Context(), req)
	if !result.Success {
		respondJSON(w, http.StatusNotFound, result)
		return
	}
	h.broadcast("entity_updated", req.SessionID, []string{req.EntityID})
	respondJSON(w, http.StatusOK, result)
}

// DeleteEntities handles DELETE /api/entities.
func (h *EntityHandlers) DeleteEntities(w http.ResponseWriter, r *http.Request) {
	var req types.DeleteEntitiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required", nil)
		return
	}

	result := h.manager.DeleteEntities(r.Context(), req)
	if !result.Success {
		respondJSON(w, http.StatusNotFound, result)
		return
	}
	if len(result.DeletedEntities) > 0 {
		if h.similarity != nil {
			// Stale vectors would surface in similarity queries; prune now.
			_ = h.similarity.RemoveEntities(r.Context(), req.SessionID, result.DeletedEntities)
		}
		h.broadcast("entities_deleted", req.SessionID, result.DeletedEntities)
	}
	respondJSON(w, http.StatusOK, result)
}

// DetectRelationships handles POST /api/entities/detect: an on-demand
// recomputation of the session's relationship graph.
func (h *EntityHandlers) DetectRelationships(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required", nil)
		return
	}

	updated, err := h.manager.DetectRelationships(r.Context(), req.SessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to detect relationships", err)
		return
	}
	if updated {
		h.broadcast("relationships_detected", req.SessionID, nil)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": req.SessionID,
		"updated":    updated,
	})
}

// RelationshipSummary handles GET /api/entities/summary?session_id=.
func (h *EntityHandlers) RelationshipSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required", nil)
		return
	}

	summary, err := h.manager.RelationshipSummary(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to summarize relationships", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"summary":    summary,
	})
}

// SimilarEntities handles GET /api/entities/similar?session_id=&q=&limit=.
func (h *EntityHandlers) SimilarEntities(w http.ResponseWriter, r *http.Request) {
	if h.similarity == nil {
		respondError(w, http.StatusNotImplemented, "similarity search is disabled", nil)
		return
	}

	q := r.URL.Query()
	sessionID := q.Get("session_id")
	query := q.Get("q")
	if sessionID == "" || query == "" {
		respondError(w, http.StatusBadRequest, "session_id and q are required", nil)
		return
	}

	matches, err := h.similarity.Similar(r.Context(), sessionID, query, parseInt(q.Get("limit"), 5))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "similarity search failed", err)
		return
	}

	results := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		results = append(results, map[string]interface{}{
			"entity_id":  m.EntityID,
			"similarity": m.Similarity,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"query":      query,
		"results":    results,
	})
}

func (h *EntityHandlers) broadcast(event, sessionID string, ids []string) {
	if h.hub == nil {
		return
	}
	h.hub.BroadcastEntityEvent(event, sessionID, ids)
}

func entityIDs(entities []types.Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.EntityID)
	}
	return ids
}
