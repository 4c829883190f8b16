package types

import (
	"time"

	"github.com/google/uuid"
)

// Chat session lifecycle states.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusArchived  = "archived"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	MessageID string                 `json:"message_id"`
	Role      string                 `json:"role"` // "user" or "assistant"
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewMessageID returns a fresh short-hex message id.
func NewMessageID() string {
	return "msg_" + uuid.New().String()[:8]
}

// ChatSession holds one conversation's history and working context.
// Context carries the caller-selected field/column payloads the agent
// extracts from; EntitiesCreated tracks ids of entities created during
// the conversation.
type ChatSession struct {
	SessionID       string                 `json:"session_id"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Messages        []ChatMessage          `json:"messages"`
	Context         map[string]interface{} `json:"context"`
	EntitiesCreated []string               `json:"entities_created"`
	Status          string                 `json:"status"`
}

// NewChatSession creates an active session with the given initial context.
func NewChatSession(sessionID string, initialContext map[string]interface{}, now time.Time) *ChatSession {
	if initialContext == nil {
		initialContext = map[string]interface{}{}
	}
	return &ChatSession{
		SessionID:       sessionID,
		CreatedAt:       now,
		UpdatedAt:       now,
		Messages:        []ChatMessage{},
		Context:         initialContext,
		EntitiesCreated: []string{},
		Status:          SessionStatusActive,
	}
}

// AddMessage appends a turn and bumps the session timestamp.
func (s *ChatSession) AddMessage(role, content string, now time.Time) ChatMessage {
	msg := ChatMessage{
		MessageID: NewMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = now
	return msg
}
