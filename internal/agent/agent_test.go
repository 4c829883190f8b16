package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facetlabs/facet/internal/engine"
	"github.com/facetlabs/facet/internal/llm"
	"github.com/facetlabs/facet/internal/sessions"
	"github.com/facetlabs/facet/internal/storage"
	"github.com/facetlabs/facet/pkg/types"
)

type fakeText struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeText) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeText) GetModel() string { return "fake-model" }

// memStore backs both the document and session stores for agent tests.
// Sessions round-trip through JSON so context values take the shape they
// would have after real persistence.
type memStore struct {
	mu       sync.Mutex
	docs     map[string]*types.CollectionDocument
	revs     map[string]int64
	sessions map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{
		docs:     map[string]*types.CollectionDocument{},
		revs:     map[string]int64{},
		sessions: map[string][]byte{},
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
	raw, ok := s.sessions[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	var session types.ChatSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *memStore) SaveSession(_ context.Context, session *types.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	s.sessions[session.SessionID] = raw
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

func newTestAgent(text llm.TextGenerator) (*Agent, *memStore) {
	store := newMemStore()
	return New(text, llm.NewLibrary(), sessions.NewManager(store), engine.NewManager(store), nil), store
}

func mustSession(t *testing.T, store *memStore, sessionID string) *types.ChatSession {
	t.Helper()
	session, err := store.GetSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("session %s: %v", sessionID, err)
	}
	return session
}

func TestProcessMessageHelp(t *testing.T) {
	text := &fakeText{}
	a, store := newTestAgent(text)

	resp := a.ProcessMessage(context.Background(), types.ChatRequest{
		SessionID: "s1",
		Message:   "help",
	})

	if !resp.Success || !strings.Contains(resp.Response, "Entity Extraction") {
		t.Fatalf("resp = %+v", resp)
	}
	if len(text.prompts) != 0 {
		t.Error("help must not call the LLM")
	}

	session := mustSession(t, store, "s1")
	if len(session.Messages) != 2 {
		t.Fatalf("messages = %d, want user+assistant", len(session.Messages))
	}
	if session.Messages[0].Role != "user" || session.Messages[1].Role != "assistant" {
		t.Errorf("roles = %s/%s", session.Messages[0].Role, session.Messages[1].Role)
	}
}

func TestProcessMessageExtractionWithoutContext(t *testing.T) {
	text := &fakeText{}
	a, _ := newTestAgent(text)

	resp := a.ProcessMessage(context.Background(), types.ChatRequest{
		SessionID: "s1",
		Message:   "extract entities please",
	})

	if resp.Success {
		t.Error("extraction without fields or columns should not succeed")
	}
	if !strings.Contains(resp.Response, "provide some data") {
		t.Errorf("response = %q", resp.Response)
	}
	if len(text.prompts) != 0 {
		t.Error("no LLM call expected without context data")
	}
}

func TestProcessMessageExtraction(t *testing.T) {
	text := &fakeText{reply: `{"entities": [
		{"entity_name": "Credit Account", "entity_type": "field",
		 "attributes": [{"attribute_name": "Account ID"}]},
		{"entity_name": "Customer", "entity_type": "field",
		 "attributes": [{"attribute_name": "Account ID"}]}
	]}`}
	a, store := newTestAgent(text)

	resp := a.ProcessMessage(context.Background(), types.ChatRequest{
		SessionID: "s1",
		Message:   "extract entities from my fields",
		SelectedFields: []map[string]interface{}{
			{"description": "Credit Score", "data_type": "number", "segment_name": "Risk"},
		},
	})

	if !resp.Success || resp.EntitiesCreated != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(resp.Response, "'Credit Account'") || !strings.Contains(resp.Response, "'Customer'") {
		t.Errorf("response = %q", resp.Response)
	}
	if len(text.prompts) != 1 || !strings.Contains(text.prompts[0], "Domain Fields:") {
		t.Errorf("extraction prompt missing field context: %q", text.prompts)
	}

	session := mustSession(t, store, "s1")
	if len(session.EntitiesCreated) != 2 {
		t.Errorf("entities_created = %v", session.EntitiesCreated)
	}
	if _, ok := session.Context["selected_fields"]; !ok {
		t.Error("selected_fields missing from session context")
	}

	doc, _, err := store.Get(context.Background(), "s1")
	if err != nil || len(doc.Entities) != 2 {
		t.Fatalf("stored doc = %+v err = %v", doc, err)
	}
}

func TestProcessMessageExtractionUsesStoredContext(t *testing.T) {
	text := &fakeText{reply: `{"entities": [{"entity_name": "E", "entity_type": "field"}]}`}
	a, _ := newTestAgent(text)
	ctx := context.Background()

	// First turn supplies the columns; second extracts without them.
	first := a.ProcessMessage(ctx, types.ChatRequest{
		SessionID: "s1",
		Message:   "hello there",
		SelectedColumns: []map[string]interface{}{
			{"column_name": "balance", "data_type": "decimal", "description": "Current balance"},
		},
	})
	if !first.Success {
		t.Fatalf("first = %+v", first)
	}

	resp := a.ProcessMessage(ctx, types.ChatRequest{SessionID: "s1", Message: "extract entities"})
	if !resp.Success || resp.EntitiesCreated != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	last := text.prompts[len(text.prompts)-1]
	if !strings.Contains(last, "Asset Columns:") || !strings.Contains(last, "balance") {
		t.Errorf("stored columns missing from extraction prompt: %q", last)
	}
}

func TestProcessMessageCreation(t *testing.T) {
	text := &fakeText{reply: `{"entity_name": "Risk Score", "entity_type": "business_metric"}`}
	a, _ := newTestAgent(text)

	resp := a.ProcessMessage(context.Background(), types.ChatRequest{
		SessionID: "s1",
		Message:   "create a risk score entity",
	})

	if !resp.Success || resp.EntitiesCreated != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(resp.Response, "'Risk Score'") {
		t.Errorf("response = %q", resp.Response)
	}
}

func TestProcessMessageCreationParseFailure(t *testing.T) {
	text := &fakeText{reply: "Sure, what kind of entity would you like?"}
	a, _ := newTestAgent(text)

	resp := a.ProcessMessage(context.Background(), types.ChatRequest{
		SessionID: "s1",
		Message:   "create something",
	})

	if resp.Success {
		t.Error("unparseable creation reply should not succeed")
	}
	if !strings.Contains(resp.Response, "more details") {
		t.Errorf("response = %q", resp.Response)
	}
}

func TestProcessMessageList(t *testing.T) {
	text := &fakeText{reply: `{"entity_name": "Customer", "entity_type": "field", "description": "A customer"}`}
	a, _ := newTestAgent(text)
	ctx := context.Background()

	if resp := a.ProcessMessage(ctx, types.ChatRequest{SessionID: "s1", Message: "create a customer"}); !resp.Success {
		t.Fatalf("seed create failed: %+v", resp)
	}

	resp := a.ProcessMessage(ctx, types.ChatRequest{SessionID: "s1", Message: "list my entities"})
	if !resp.Success || len(resp.Entities) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if !strings.Contains(resp.Response, "- Customer (field) - A customer") {
		t.Errorf("response = %q", resp.Response)
	}
}

func TestProcessMessageListEmpty(t *testing.T) {
	a, _ := newTestAgent(&fakeText{})

	resp := a.ProcessMessage(context.Background(), types.ChatRequest{
		SessionID: "s1",
		Message:   "list my entities",
	})
	if !resp.Success || !strings.Contains(resp.Response, "don't see any entities") {
		t.Errorf("resp = %+v", resp)
	}
}

func TestProcessMessageGeneral(t *testing.T) {
	text := &fakeText{reply: "You can ask me to extract entities."}
	a, _ := newTestAgent(text)

	resp := a.ProcessMessage(context.Background(), types.ChatRequest{
		SessionID: "s1",
		Message:   "what is this?",
	})
	if !resp.Success || resp.Response != "You can ask me to extract entities." {
		t.Errorf("resp = %+v", resp)
	}
}

func TestProcessMessageGeneralFallsBackOnLLMError(t *testing.T) {
	text := &fakeText{err: errors.New("ollama unreachable")}
	a, _ := newTestAgent(text)

	resp := a.ProcessMessage(context.Background(), types.ChatRequest{
		SessionID: "s1",
		Message:   "hello",
	})
	if !resp.Success {
		t.Error("general fallback should still be a successful reply")
	}
	if !strings.Contains(resp.Response, "entity extraction and management") {
		t.Errorf("response = %q", resp.Response)
	}
}

func TestProcessMessageUpdateDeleteNotImplemented(t *testing.T) {
	a, _ := newTestAgent(&fakeText{})
	ctx := context.Background()

	upd := a.ProcessMessage(ctx, types.ChatRequest{SessionID: "s1", Message: "update my entity"})
	if upd.Success || !strings.Contains(upd.Response, "not yet implemented") {
		t.Errorf("update resp = %+v", upd)
	}

	del := a.ProcessMessage(ctx, types.ChatRequest{SessionID: "s1", Message: "delete my entity"})
	if del.Success || !strings.Contains(del.Response, "not yet implemented") {
		t.Errorf("delete resp = %+v", del)
	}
}
