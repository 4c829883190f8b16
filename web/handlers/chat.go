package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/facetlabs/facet/internal/agent"
	"github.com/facetlabs/facet/internal/sessions"
	"github.com/facetlabs/facet/internal/storage"
	"github.com/facetlabs/facet/pkg/types"
)

// ChatHandlers contains HTTP handlers for the conversational API.
type ChatHandlers struct {
	agent    *agent.Agent
	sessions *sessions.Manager
}

// NewChatHandlers creates chat handlers.
func NewChatHandlers(a *agent.Agent, s *sessions.Manager) *ChatHandlers {
	return &ChatHandlers{agent: a, sessions: s}
}

// Chat handles POST /api/chat: one conversational turn.
func (h *ChatHandlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required", nil)
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required", nil)
		return
	}

	respondJSON(w, http.StatusOK, h.agent.ProcessMessage(r.Context(), req))
}

// GetSession handles GET /api/sessions/{id}: the session transcript and
// working context.
func (h *ChatHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session id is required", nil)
		return
	}

	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get session", err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// DeleteSession handles DELETE /api/sessions/{id}.
func (h *ChatHandlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session id is required", nil)
		return
	}

	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
