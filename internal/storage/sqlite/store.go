// Package sqlite provides the SQLite implementation of the storage
// interfaces. It is the default engine: zero external dependencies, one
// file on disk.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/facetlabs/facet/internal/storage"
	"github.com/facetlabs/facet/pkg/types"
)

// Store implements storage.DocumentStore, storage.SessionStore, and
// storage.EmbeddingStore using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database, configures WAL mode, and applies the
// schema. The dsn is a file path or ":memory:".
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load; WAL
	// lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves the document for a session with its current revision.
func (s *Store) Get(ctx context.Context, sessionID string) (*types.CollectionDocument, int64, error) {
	if sessionID == "" {
		return nil, 0, fmt.Errorf("sqlite: %w: empty session id", storage.ErrInvalidInput)
	}

	var raw string
	var revision int64
	err := s.db.QueryRowContext(ctx,
		`SELECT doc, revision FROM entity_documents WHERE session_id = ?`,
		sessionID).Scan(&raw, &revision)
	if err == sql.ErrNoRows {
		return nil, 0, storage.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: failed to load document: %w", err)
	}

	var doc types.CollectionDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, 0, fmt.Errorf("sqlite: failed to decode document %s: %w", sessionID, err)
	}
	return &doc, revision, nil
}

// Set writes the whole document with a compare-and-swap on the revision.
// expectedRevision 0 inserts a new row.
func (s *Store) Set(ctx context.Context, sessionID string, doc *types.CollectionDocument, expectedRevision int64) (int64, error) {
	if sessionID == "" || doc == nil {
		return 0, fmt.Errorf("sqlite: %w: empty session id or nil document", storage.ErrInvalidInput)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to encode document: %w", err)
	}

	if expectedRevision == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO entity_documents (session_id, revision, doc, created_at, updated_at)
			 VALUES (?, 1, ?, ?, ?)`,
			sessionID, string(raw), doc.CreatedAt, doc.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				// Someone else inserted first; the caller reloads.
				return 0, storage.ErrRevisionMismatch
			}
			return 0, fmt.Errorf("sqlite: failed to insert document: %w", err)
		}
		return 1, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE entity_documents SET doc = ?, revision = revision + 1, updated_at = ?
		 WHERE session_id = ? AND revision = ?`,
		string(raw), doc.UpdatedAt, sessionID, expectedRevision)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to update document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if rows == 0 {
		// Either the revision moved or the row was deleted; the caller
		// reloads and finds out which.
		return 0, storage.ErrRevisionMismatch
	}
	return expectedRevision + 1, nil
}

// Delete removes a session's document.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entity_documents WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetSession retrieves a chat session.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.ChatSession, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT session FROM chat_sessions WHERE session_id = ?`, sessionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to load chat session: %w", err)
	}

	var session types.ChatSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("sqlite: failed to decode chat session %s: %w", sessionID, err)
	}
	return &session, nil
}

// SaveSession creates or replaces a chat session.
func (s *Store) SaveSession(ctx context.Context, session *types.ChatSession) error {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("sqlite: %w: nil session or empty session id", storage.ErrInvalidInput)
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode chat session: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (session_id, session, status, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		     session = excluded.session,
		     status = excluded.status,
		     updated_at = excluded.updated_at`,
		session.SessionID, string(raw), session.Status, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save chat session: %w", err)
	}
	return nil
}

// DeleteSession removes a chat session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete chat session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CleanupExpiredSessions removes sessions idle for longer than maxAge.
func (s *Store) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to cleanup sessions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to read rows affected: %w", err)
	}
	return int(rows), nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint violations in the error text;
	// the driver does not export typed errors for them.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
