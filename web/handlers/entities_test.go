package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facetlabs/facet/internal/engine"
	"github.com/facetlabs/facet/internal/storage"
	"github.com/facetlabs/facet/pkg/types"
)

// memStore is a minimal in-memory DocumentStore and SessionStore for
// handler tests.
type memStore struct {
	mu       sync.Mutex
	docs     map[string]*types.CollectionDocument
	revs     map[string]int64
	sessions map[string]*types.ChatSession
}

func newMemStore() *memStore {
	return &memStore{
		docs:     map[string]*types.CollectionDocument{},
		revs:     map[string]int64{},
		sessions: map[string]*types.ChatSession{},
	}
}

func (s *memStore) Get(_ context.Context, sessionID string) (*types.CollectionDocument, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[sessionID]
	if !ok {
		return nil, 0, storage.ErrNotFound
	}
	clone := *doc
	clone.Entities = append([]types.Entity(nil), doc.Entities...)
	return &clone, s.revs[sessionID], nil
}

func (s *memStore) Set(_ context.Context, sessionID string, doc *types.CollectionDocument, expectedRevision int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revs[sessionID] != expectedRevision {
		return 0, storage.ErrRevisionMismatch
	}
	clone := *doc
	clone.Entities = append([]types.Entity(nil), doc.Entities...)
	s.docs[sessionID] = &clone
	s.revs[sessionID] = expectedRevision + 1
	return s.revs[sessionID], nil
}

func (s *memStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, sessionID)
	delete(s.revs, sessionID)
	return nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) GetSession(_ context.Context, sessionID string) (*types.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *session
	return &clone, nil
}

func (s *memStore) SaveSession(_ context.Context, session *types.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *session
	s.sessions[session.SessionID] = &clone
	return nil
}

func (s *memStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *memStore) CleanupExpiredSessions(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}

func newEntityHandlers() (*EntityHandlers, *memStore) {
	store := newMemStore()
	return NewEntityHandlers(engine.NewManager(store), nil, nil), store
}

func doJSON(t *testing.T, h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCreateEntitiesHandler(t *testing.T) {
	h, store := newEntityHandlers()

	rec := doJSON(t, h.CreateEntities, http.MethodPost, "/api/entities",
		`{"session_id": "s1", "entities_data": [
			{"entity_name": "Credit Account", "entity_type": "field"}
		]}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[types.CreateEntitiesResponse](t, rec)
	if !resp.Success || resp.TotalCreated != 1 {
		t.Errorf("resp = %+v", resp)
	}

	if doc, _, err := store.Get(context.Background(), "s1"); err != nil || len(doc.Entities) != 1 {
		t.Errorf("doc = %+v err = %v", doc, err)
	}
}

func TestCreateEntitiesHandlerValidation(t *testing.T) {
	h, _ := newEntityHandlers()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"session_id":`},
		{"missing session_id", `{"entities_data": [{"entity_name": "A", "entity_type": "field"}]}`},
		{"missing entities_data", `{"session_id": "s1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h.CreateEntities, http.MethodPost, "/api/entities", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d", rec.Code)
			}
		})
	}
}

func TestReadEntitiesHandler(t *testing.T) {
	h, _ := newEntityHandlers()

	seed := doJSON(t, h.CreateEntities, http.MethodPost, "/api/entities",
		`{"session_id": "s1", "entities_data": [
			{"entity_name": "A", "entity_type": "field"},
			{"entity_name": "B", "entity_type": "business_metric"}
		]}`)
	if seed.Code != http.StatusCreated {
		t.Fatalf("seed failed: %s", seed.Body.String())
	}

	rec := doJSON(t, h.ReadEntities, http.MethodGet, "/api/entities?session_id=s1&entity_type=field", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[types.ReadEntitiesResponse](t, rec)
	if resp.TotalCount != 1 || resp.Entities[0].EntityName != "A" {
		t.Errorf("resp = %+v", resp)
	}

	if rec := doJSON(t, h.ReadEntities, http.MethodGet, "/api/entities", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing session_id status = %d", rec.Code)
	}
	if rec := doJSON(t, h.ReadEntities, http.MethodGet, "/api/entities?session_id=unknown", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d", rec.Code)
	}
}

func TestUpdateEntityHandler(t *testing.T) {
	h, _ := newEntityHandlers()

	seed := doJSON(t, h.CreateEntities, http.MethodPost, "/api/entities",
		`{"session_id": "s1", "entities_data": [{"entity_name": "A", "entity_type": "field"}]}`)
	created := decodeBody[types.CreateEntitiesResponse](t, seed)
	entityID := created.CreatedEntities[0].EntityID

	rec := doJSON(t, h.UpdateEntity, http.MethodPut, "/api/entities",
		`{"session_id": "s1", "entity_id": "`+entityID+`", "entity_updates": {"entity_name": "Renamed"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[types.UpdateEntityResponse](t, rec)
	if resp.UpdatedEntity.EntityName != "Renamed" || resp.UpdatedEntity.Version != 2 {
		t.Errorf("resp = %+v", resp.UpdatedEntity)
	}

	if rec := doJSON(t, h.UpdateEntity, http.MethodPut, "/api/entities",
		`{"session_id": "s1", "entity_id": "entity_missing"}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing entity status = %d", rec.Code)
	}
	if rec := doJSON(t, h.UpdateEntity, http.MethodPut, "/api/entities",
		`{"session_id": "s1"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing entity_id status = %d", rec.Code)
	}
}

func TestDeleteEntitiesHandler(t *testing.T) {
	h, store := newEntityHandlers()

	doJSON(t, h.CreateEntities, http.MethodPost, "/api/entities",
		`{"session_id": "s1", "entities_data": [
			{"entity_name": "A", "entity_type": "field"},
			{"entity_name": "B", "entity_type": "field"}
		]}`)

	rec := doJSON(t, h.DeleteEntities, http.MethodDelete, "/api/entities",
		`{"session_id": "s1", "delete_all": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[types.DeleteEntitiesResponse](t, rec)
	if resp.TotalDeleted != 2 {
		t.Errorf("resp = %+v", resp)
	}

	if doc, _, err := store.Get(context.Background(), "s1"); err != nil || len(doc.Entities) != 0 {
		t.Errorf("doc = %+v err = %v", doc, err)
	}

	if rec := doJSON(t, h.DeleteEntities, http.MethodDelete, "/api/entities",
		`{"session_id": "unknown", "delete_all": true}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d", rec.Code)
	}
}

func TestDetectRelationshipsHandler(t *testing.T) {
	h, _ := newEntityHandlers()

	doJSON(t, h.CreateEntities, http.MethodPost, "/api/entities",
		`{"session_id": "s1", "entities_data": [
			{"entity_name": "A", "entity_type": "field",
			 "attributes": [{"attribute_name": "shared"}]},
			{"entity_name": "B", "entity_type": "field",
			 "attributes": [{"attribute_name": "shared"}]}
		]}`)

	rec := doJSON(t, h.DetectRelationships, http.MethodPost, "/api/entities/detect",
		`{"session_id": "s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[map[string]interface{}](t, rec)
	if resp["updated"] != true {
		t.Errorf("resp = %v", resp)
	}

	// A session with too few entities reports updated=false, not an error.
	doJSON(t, h.CreateEntities, http.MethodPost, "/api/entities",
		`{"session_id": "s2", "entities_data": [{"entity_name": "Solo", "entity_type": "field"}]}`)
	rec = doJSON(t, h.DetectRelationships, http.MethodPost, "/api/entities/detect",
		`{"session_id": "s2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decodeBody[map[string]interface{}](t, rec); resp["updated"] != false {
		t.Errorf("resp = %v", resp)
	}
}

func TestRelationshipSummaryHandler(t *testing.T) {
	h, _ := newEntityHandlers()

	doJSON(t, h.CreateEntities, http.MethodPost, "/api/entities",
		`{"session_id": "s1", "entities_data": [
			{"entity_name": "A", "entity_type": "field",
			 "attributes": [{"attribute_name": "shared"}]},
			{"entity_name": "B", "entity_type": "field",
			 "attributes": [{"attribute_name": "shared"}]}
		]}`)

	rec := doJSON(t, h.RelationshipSummary, http.MethodGet, "/api/entities/summary?session_id=s1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[map[string]string](t, rec)
	if !strings.Contains(resp["summary"], "relates_to") {
		t.Errorf("summary = %q", resp["summary"])
	}

	rec = doJSON(t, h.RelationshipSummary, http.MethodGet, "/api/entities/summary?session_id=unknown", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp = decodeBody[map[string]string](t, rec)
	if resp["summary"] != "No relationships detected between entities." {
		t.Errorf("summary = %q", resp["summary"])
	}
}

func TestSimilarEntitiesDisabled(t *testing.T) {
	h, _ := newEntityHandlers()

	rec := doJSON(t, h.SimilarEntities, http.MethodGet, "/api/entities/similar?session_id=s1&q=risk", "")
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[map[string]string](t, rec)
	if body["status"] != "healthy" || body["service"] != "facet" {
		t.Errorf("body = %v", body)
	}

	rec = httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}
