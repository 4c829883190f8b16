package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/facetlabs/facet/internal/storage"
)

// StoreEmbedding saves (or replaces) the name embedding for one entity.
// The vector is always written to the JSONB column; when pgvector is
// available it is also written to vector_vec for cosine-distance queries.
func (s *Store) StoreEmbedding(ctx context.Context, sessionID, entityID string, vector []float32, model string) error {
	if sessionID == "" || entityID == "" {
		return fmt.Errorf("postgres: %w: session id and entity id are required", storage.ErrInvalidInput)
	}
	if len(vector) == 0 {
		return fmt.Errorf("postgres: %w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}

	raw, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode embedding: %w", err)
	}

	if s.pgvectorAvailable {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO entity_embeddings (session_id, entity_id, model, vector, vector_vec, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (session_id, entity_id) DO UPDATE SET
			     model = excluded.model,
			     vector = excluded.vector,
			     vector_vec = excluded.vector_vec,
			     updated_at = excluded.updated_at`,
			sessionID, entityID, model, raw, pgvector.NewVector(vector), time.Now().UTC())
	} else {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO entity_embeddings (session_id, entity_id, model, vector, updated_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (session_id, entity_id) DO UPDATE SET
			     model = excluded.model,
			     vector = excluded.vector,
			     updated_at = excluded.updated_at`,
			sessionID, entityID, model, raw, time.Now().UTC())
	}
	if err != nil {
		return fmt.Errorf("postgres: failed to store embedding: %w", err)
	}
	return nil
}

// SimilarEntities ranks the session's entities by cosine similarity to the
// query vector. Uses pgvector's <=> operator when available, otherwise
// scans the session's JSONB vectors in process.
func (s *Store) SimilarEntities(ctx context.Context, sessionID string, query []float32, limit int) ([]storage.SimilarityMatch, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("postgres: %w: query vector cannot be empty", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	if s.pgvectorAvailable {
		rows, err := s.db.QueryContext(ctx,
			`SELECT entity_id, 1 - (vector_vec <=> $1) AS similarity
			 FROM entity_embeddings
			 WHERE session_id = $2 AND vector_vec IS NOT NULL
			 ORDER BY vector_vec <=> $1
			 LIMIT $3`,
			pgvector.NewVector(query), sessionID, limit)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to query embeddings: %w", err)
		}
		defer rows.Close()

		var matches []storage.SimilarityMatch
		for rows.Next() {
			var m storage.SimilarityMatch
			if err := rows.Scan(&m.EntityID, &m.Similarity); err != nil {
				return nil, fmt.Errorf("postgres: failed to scan similarity row: %w", err)
			}
			matches = append(matches, m)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("postgres: failed to iterate embeddings: %w", err)
		}
		return matches, nil
	}

	return s.similarEntitiesInProcess(ctx, sessionID, query, limit)
}

// similarEntitiesInProcess is the fallback path for servers without
// pgvector.
func (s *Store) similarEntitiesInProcess(ctx context.Context, sessionID string, query []float32, limit int) ([]storage.SimilarityMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, vector FROM entity_embeddings WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var matches []storage.SimilarityMatch
	for rows.Next() {
		var entityID string
		var raw []byte
		if err := rows.Scan(&entityID, &raw); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan embedding row: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal(raw, &vec); err != nil {
			return nil, fmt.Errorf("postgres: failed to decode embedding for %s: %w", entityID, err)
		}
		if len(vec) != len(query) {
			continue
		}
		matches = append(matches, storage.SimilarityMatch{
			EntityID:   entityID,
			Similarity: cosineSimilarity(query, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate embeddings: %w", err)
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

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM entity_embeddings WHERE session_id = $1 AND entity_id = ANY($2)`,
		sessionID, pq.Array(entityIDs))
	if err != nil {
		return fmt.Errorf("postgres: failed to delete embeddings: %w", err)
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
