// Package storage provides composable storage interfaces for Facet.
//
// The storage layer persists whole per-session documents: every mutation
// reads a full document, changes it in memory, and writes the full
// document back. Rows carry a monotonically increasing revision so that
// concurrent writers to the same session are detected instead of silently
// losing updates.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/facetlabs/facet/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrRevisionMismatch indicates that a save lost an optimistic
	// concurrency race: the stored revision no longer matches the one the
	// caller loaded. Callers reload and reapply their mutation.
	ErrRevisionMismatch = errors.New("document revision mismatch")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// DocumentStore persists entity collection documents keyed by session id.
type DocumentStore interface {
	// Get retrieves the document for a session together with its current
	// revision. Returns ErrNotFound for unknown sessions.
	Get(ctx context.Context, sessionID string) (*types.CollectionDocument, int64, error)

	// Set writes the whole document. expectedRevision must be the revision
	// returned by the Get the mutation was based on, or 0 to insert a new
	// document. Returns the new revision, or ErrRevisionMismatch when the
	// stored revision has moved on (including insert races).
	Set(ctx context.Context, sessionID string, doc *types.CollectionDocument, expectedRevision int64) (int64, error)

	// Delete removes a session's document. Returns ErrNotFound for unknown
	// sessions.
	Delete(ctx context.Context, sessionID string) error

	// Close releases any resources held by the store.
	Close() error
}

// SessionStore persists chat sessions keyed by session id.
type SessionStore interface {
	// GetSession retrieves a chat session. Returns ErrNotFound for unknown
	// sessions.
	GetSession(ctx context.Context, sessionID string) (*types.ChatSession, error)

	// SaveSession creates or replaces a chat session (upsert semantics).
	SaveSession(ctx context.Context, session *types.ChatSession) error

	// DeleteSession removes a chat session. Returns ErrNotFound for
	// unknown sessions.
	DeleteSession(ctx context.Context, sessionID string) error

	// CleanupExpiredSessions removes sessions whose last update is older
	// than maxAge. Returns the number of sessions removed.
	CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error)
}

// EmbeddingStore persists per-entity name embeddings and answers
// nearest-neighbour queries within one session.
type EmbeddingStore interface {
	// StoreEmbedding saves (or replaces) the embedding for an entity.
	StoreEmbedding(ctx context.Context, sessionID, entityID string, vector []float32, model string) error

	// SimilarEntities returns up to limit entity ids in the session ranked
	// by cosine similarity to the query vector, most similar first.
	SimilarEntities(ctx context.Context, sessionID string, query []float32, limit int) ([]SimilarityMatch, error)

	// DeleteEmbeddings removes stored embeddings for the given entity ids.
	DeleteEmbeddings(ctx context.Context, sessionID string, entityIDs []string) error
}

// SimilarityMatch is one ranked result from SimilarEntities.
type SimilarityMatch struct {
	EntityID   string
	Similarity float64
}
