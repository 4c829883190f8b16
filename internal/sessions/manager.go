// Package sessions manages chat session lifecycle: creation, context
// updates, message history, and expiry of stale sessions.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/facetlabs/facet/internal/storage"
	"github.com/facetlabs/facet/pkg/types"
)

// Manager wraps a SessionStore with the session-level operations the
// conversational agent needs. Sessions are saved whole after every
// mutation, same as entity documents.
type Manager struct {
	store storage.SessionStore
	now   func() time.Time
}

// NewManager creates a session manager.
func NewManager(store storage.SessionStore) *Manager {
	return &Manager{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Get retrieves an existing session. Returns storage.ErrNotFound for
// unknown ids.
func (m *Manager) Get(ctx context.Context, sessionID string) (*types.ChatSession, error) {
	return m.store.GetSession(ctx, sessionID)
}

// GetOrCreate retrieves a session, creating an active one with the given
// initial context when none exists.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string, initialContext map[string]interface{}) (*types.ChatSession, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		session = types.NewChatSession(sessionID, initialContext, m.now())
		if err := m.store.SaveSession(ctx, session); err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		log.Printf("sessions: created session %s", sessionID)
		return session, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateContext merges updates into the session context.
func (m *Manager) UpdateContext(ctx context.Context, sessionID string, updates map[string]interface{}) (*types.ChatSession, error) {
	if len(updates) == 0 {
		return m.store.GetSession(ctx, sessionID)
	}
	return m.save(ctx, sessionID, func(session *types.ChatSession) {
		if session.Context == nil {
			session.Context = map[string]interface{}{}
		}
		for k, v := range updates {
			session.Context[k] = v
		}
	})
}

// AddMessage appends one conversation turn.
func (m *Manager) AddMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := m.save(ctx, sessionID, func(session *types.ChatSession) {
		session.AddMessage(role, content, m.now())
	})
	return err
}

// AddCreatedEntity records an entity id created during the conversation.
// Duplicate ids are ignored.
func (m *Manager) AddCreatedEntity(ctx context.Context, sessionID, entityID string) error {
	_, err := m.save(ctx, sessionID, func(session *types.ChatSession) {
		for _, id := range session.EntitiesCreated {
			if id == entityID {
				return
			}
		}
		session.EntitiesCreated = append(session.EntitiesCreated, entityID)
	})
	return err
}

// SetStatus moves the session to a new lifecycle state.
func (m *Manager) SetStatus(ctx context.Context, sessionID, status string) error {
	_, err := m.save(ctx, sessionID, func(session *types.ChatSession) {
		session.Status = status
	})
	return err
}

// Delete removes a session entirely.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.store.DeleteSession(ctx, sessionID)
}

func (m *Manager) save(ctx context.Context, sessionID string, mutate func(*types.ChatSession)) (*types.ChatSession, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	mutate(session)
	session.UpdatedAt = m.now()
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// StartCleanupLoop removes sessions idle longer than maxAge, once per
// interval, until ctx is cancelled.
func (m *Manager) StartCleanupLoop(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := m.store.CleanupExpiredSessions(ctx, maxAge)
				if err != nil {
					log.Printf("sessions: cleanup failed: %v", err)
					continue
				}
				if removed > 0 {
					log.Printf("sessions: cleaned up %d expired sessions", removed)
				}
			}
		}
	}()
}
