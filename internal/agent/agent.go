// Package agent implements the conversational entity-building agent. It
// classifies each chat message into an intent, runs the matching handler
// (LLM-backed extraction and creation, direct reads for listing), and
// keeps the session transcript up to date.
package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/facetlabs/facet/internal/engine"
	"github.com/facetlabs/facet/internal/llm"
	"github.com/facetlabs/facet/internal/sessions"
	"github.com/facetlabs/facet/pkg/types"
)

const helpText = `I'm here to help you build and manage entities! Here's what I can do:

**Entity Extraction:**
- "Extract entities from my selected fields"
- "Find entities in my asset columns"
- "Identify business entities from the data"

**Entity Creation:**
- "Create a customer entity with name and email attributes"
- "Build a credit account entity"
- "Make a transaction entity"

**Entity Management:**
- "List all my entities"
- "Show me what entities I have"

**Data Context:**
- You can provide domain fields and asset columns, and I'll use them for extraction
- I remember our conversation context throughout the session

Just tell me what you'd like to do in natural language!`

const generalFallback = "I'm here to help with entity extraction and management. " +
	"You can ask me to extract entities from your data, create new entities, " +
	"or list existing ones. What would you like to do?"

// Agent drives one chat turn end to end.
type Agent struct {
	text       llm.TextGenerator
	prompts    *llm.Library
	sessions   *sessions.Manager
	entities   *engine.Manager
	similarity *engine.SimilarityService // nil when embeddings are disabled
}

// New creates an agent. similarity may be nil.
func New(text llm.TextGenerator, prompts *llm.Library, sessionMgr *sessions.Manager, entityMgr *engine.Manager, similarity *engine.SimilarityService) *Agent {
	return &Agent{
		text:       text,
		prompts:    prompts,
		sessions:   sessionMgr,
		entities:   entityMgr,
		similarity: similarity,
	}
}

// ProcessMessage handles one conversational turn: record the user
// message, dispatch on intent, record the reply. Handler errors become a
// polite failure reply rather than an HTTP error, so the conversation can
// continue.
func (a *Agent) ProcessMessage(ctx context.Context, req types.ChatRequest) types.ChatResponse {
	initialContext := map[string]interface{}{}
	contextUpdates := map[string]interface{}{}
	if len(req.SelectedFields) > 0 {
		initialContext["selected_fields"] = req.SelectedFields
		contextUpdates["selected_fields"] = req.SelectedFields
	}
	if len(req.SelectedColumns) > 0 {
		initialContext["selected_columns"] = req.SelectedColumns
		contextUpdates["selected_columns"] = req.SelectedColumns
	}

	session, err := a.sessions.GetOrCreate(ctx, req.SessionID, initialContext)
	if err != nil {
		log.Printf("agent: failed to load session %s: %v", req.SessionID, err)
		return errorResponse(err)
	}
	if len(contextUpdates) > 0 {
		if session, err = a.sessions.UpdateContext(ctx, req.SessionID, contextUpdates); err != nil {
			log.Printf("agent: failed to update context for %s: %v", req.SessionID, err)
			return errorResponse(err)
		}
	}

	if err := a.sessions.AddMessage(ctx, req.SessionID, "user", req.Message); err != nil {
		log.Printf("agent: failed to record user message: %v", err)
	}

	intent := ClassifyIntent(req.Message)
	log.Printf("agent: session %s intent %s", req.SessionID, intent)

	var resp types.ChatResponse
	switch intent {
	case IntentExtract:
		resp = a.handleExtraction(ctx, req, session)
	case IntentCreate:
		resp = a.handleCreation(ctx, req, session)
	case IntentList:
		resp = a.handleList(ctx, req.SessionID)
	case IntentUpdate:
		resp = textResponse("Entity updates through conversation are not yet implemented. You can use the API endpoints for now.", false)
	case IntentDelete:
		resp = textResponse("Entity deletion through conversation is not yet implemented. You can use the API endpoints for now.", false)
	case IntentHelp:
		resp = textResponse(helpText, true)
	default:
		resp = a.handleGeneral(ctx, req.Message, session)
	}

	if err := a.sessions.AddMessage(ctx, req.SessionID, "assistant", resp.Response); err != nil {
		log.Printf("agent: failed to record assistant message: %v", err)
	}
	return resp
}

func (a *Agent) handleExtraction(ctx context.Context, req types.ChatRequest, session *types.ChatSession) types.ChatResponse {
	fields := req.SelectedFields
	if len(fields) == 0 {
		fields = contextMaps(session, "selected_fields")
	}
	columns := req.SelectedColumns
	if len(columns) == 0 {
		columns = contextMaps(session, "selected_columns")
	}

	if len(fields) == 0 && len(columns) == 0 {
		return textResponse("I'd be happy to help extract entities! However, I don't see any domain fields or asset columns in our conversation. Could you please provide some data to work with?", false)
	}

	prompt := a.prompts.SystemPrompt() + "\n\n" +
		a.prompts.ContextPrompt(fields, columns) + "\n\nUser request: " + req.Message

	completion, err := a.text.Complete(ctx, prompt)
	if err != nil {
		log.Printf("agent: extraction completion failed: %v", err)
		return textResponse(fmt.Sprintf("I encountered an error while extracting entities: %v", err), false)
	}

	specs, err := llm.ParseEntitySpecs(completion)
	if err != nil {
		log.Printf("agent: failed to parse extraction response: %v", err)
		return textResponse("I couldn't find any entities in the model's response. Could you try rephrasing or providing more context?", false)
	}

	return a.createFromSpecs(ctx, req.SessionID, specs)
}

func (a *Agent) handleCreation(ctx context.Context, req types.ChatRequest, session *types.ChatSession) types.ChatResponse {
	fieldCount := len(contextMaps(session, "selected_fields"))
	columnCount := len(contextMaps(session, "selected_columns"))

	completion, err := a.text.Complete(ctx, a.prompts.EntityCreationPrompt(req.Message, fieldCount, columnCount))
	if err != nil {
		log.Printf("agent: creation completion failed: %v", err)
		return textResponse(fmt.Sprintf("I encountered an error while creating the entity: %v", err), false)
	}

	specs, err := llm.ParseEntitySpecs(completion)
	if err != nil {
		return textResponse("I understand you want to create an entity, but I need more details. Could you please specify the entity name, type, and any attributes you'd like to include?", false)
	}

	return a.createFromSpecs(ctx, req.SessionID, specs)
}

// createFromSpecs is the shared tail of extraction and creation: persist
// the specs, index embeddings, track the new ids on the session.
func (a *Agent) createFromSpecs(ctx context.Context, sessionID string, specs []types.EntitySpec) types.ChatResponse {
	result := a.entities.CreateEntities(ctx, types.CreateEntitiesRequest{
		SessionID:    sessionID,
		EntitiesData: specs,
	})
	if !result.Success {
		return textResponse(fmt.Sprintf("I had trouble creating the entities: %s", result.Message), false)
	}
	if result.TotalCreated == 0 {
		return textResponse(fmt.Sprintf("No entities were created: %s", result.Message), false)
	}

	if a.similarity != nil {
		a.similarity.IndexEntities(ctx, sessionID, result.CreatedEntities)
	}

	names := make([]string, 0, len(result.CreatedEntities))
	for _, e := range result.CreatedEntities {
		names = append(names, fmt.Sprintf("'%s'", e.EntityName))
		if err := a.sessions.AddCreatedEntity(ctx, sessionID, e.EntityID); err != nil {
			log.Printf("agent: failed to track created entity %s: %v", e.EntityID, err)
		}
	}

	return types.ChatResponse{
		Response:        fmt.Sprintf("Great! I've created %d entities: %s.", result.TotalCreated, strings.Join(names, ", ")),
		Success:         true,
		EntitiesCreated: result.TotalCreated,
		Entities:        result.CreatedEntities,
	}
}

func (a *Agent) handleList(ctx context.Context, sessionID string) types.ChatResponse {
	result := a.entities.ReadEntities(ctx, types.ReadEntitiesRequest{SessionID: sessionID})
	if !result.Success || len(result.Entities) == 0 {
		return textResponse("I don't see any entities created in this session yet. Would you like to create some?", true)
	}

	lines := make([]string, 0, len(result.Entities))
	for _, e := range result.Entities {
		lines = append(lines, fmt.Sprintf("- %s (%s) - %s", e.EntityName, e.EntityType, e.Description))
	}
	return types.ChatResponse{
		Response: fmt.Sprintf("I found %d entities in this session:\n\n%s", len(result.Entities), strings.Join(lines, "\n")),
		Success:  true,
		Entities: result.Entities,
	}
}

func (a *Agent) handleGeneral(ctx context.Context, message string, session *types.ChatSession) types.ChatResponse {
	prompt := a.prompts.GeneralPrompt(message,
		len(contextMaps(session, "selected_fields")),
		len(contextMaps(session, "selected_columns")),
		len(session.EntitiesCreated))

	completion, err := a.text.Complete(ctx, prompt)
	if err != nil {
		log.Printf("agent: general completion failed: %v", err)
		return textResponse(generalFallback, true)
	}
	return textResponse(completion, true)
}

// contextMaps reads a []map[string]interface{} value back out of the
// session context, tolerating the []interface{} shape it takes after a
// JSON round trip through storage.
func contextMaps(session *types.ChatSession, key string) []map[string]interface{} {
	if session == nil || session.Context == nil {
		return nil
	}
	switch v := session.Context[key].(type) {
	case []map[string]interface{}:
		return v
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func textResponse(text string, success bool) types.ChatResponse {
	return types.ChatResponse{
		Response: text,
		Success:  success,
		Entities: []types.Entity{},
	}
}

func errorResponse(err error) types.ChatResponse {
	return types.ChatResponse{
		Response: fmt.Sprintf("I apologize, but I encountered an error: %v", err),
		Success:  false,
		Entities: []types.Entity{},
	}
}
