package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/facetlabs/facet/internal/storage"
)

// StoreEmbedding saves (or replaces) the name embedding for one entity.
// Vectors are stored as JSON arrays; SQLite has no vector type, so
// similarity queries scan the session's rows in process.
func (s *Store) StoreEmbedding(ctx context.Context, sessionID, entityID string, vector []float32, model string) error {
	if sessionID == "" || entityID == "" {
		return fmt.Errorf("sqlite: %w: session id and entity id are required", storage.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return fmt.Errorf("sqlite: %w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("sqlite: failed to encode embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entity_embeddings (session_id, entity_id, model, vector, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, entity_id) DO UPDATE SET
		     model = excluded.model,
		     vector = excluded.vector,
		     updated_at = excluded.updated_at`,
		sessionID, entityID, model, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: failed to store embedding: %w", err)
	}
	return nil
}

// SimilarEntities ranks the session's entities by cosine similarity to the
// query vector.
func (s *Store) SimilarEntities(ctx context.Context, sessionID string, query []float32, limit int) ([]storage.SimilarityMatch, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("sqlite: %w: query vector cannot be empty", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, vector FROM entity_embeddings WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var matches []storage.SimilarityMatch
	for rows.Next() {
		var entityID, raw string
		if err := rows.Scan(&entityID, &raw); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan embedding row: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return nil, fmt.Errorf("sqlite: failed to decode embedding for %s: %w", entityID, err)
		}
		if len(vec) != len(query) {
			// Dimension mismatch (model change); skip rather than fail.
			continue
		}
		matches = append(matches, storage.SimilarityMatch{
			EntityID:   entityID,
			Similarity: cosineSimilarity(query, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate embeddings: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].EntityID < matches[j].EntityID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteEmbeddings removes stored embeddings for the given entity ids.
func (s *Store) DeleteEmbeddings(ctx context.Context, sessionID string, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(entityIDs)), ",")
	args := make([]interface{}, 0, len(entityIDs)+1)
	args = append(args, sessionID)
	for _, id := range entityIDs {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM entity_embeddings WHERE session_id = ? AND entity_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete embeddings: %w", err)
	}
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
