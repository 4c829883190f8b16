package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/facetlabs/facet/internal/llm"
	"github.com/facetlabs/facet/internal/storage"
	"github.com/facetlabs/facet/pkg/types"
)

// SimilarityService indexes entity name/value text as embedding vectors
// and answers nearest-neighbor queries over them. Indexing is best-effort:
// a failed embedding skips that entity rather than failing the batch,
// since the entities themselves are already saved.
type SimilarityService struct {
	embedder llm.EmbeddingGenerator
	store    storage.EmbeddingStore
}

// NewSimilarityService wires an embedding generator to an embedding store.
func NewSimilarityService(embedder llm.EmbeddingGenerator, store storage.EmbeddingStore) *SimilarityService {
	return &SimilarityService{embedder: embedder, store: store}
}

// embeddingText is what gets embedded for one entity.
func embeddingText(e *types.Entity) string {
	if e.EntityValue == "" {
		return e.EntityName
	}
	return e.EntityName + ": " + e.EntityValue
}

// IndexEntities embeds and stores vectors for the given entities. Returns
// the number of entities actually indexed.
func (s *SimilarityService) IndexEntities(ctx context.Context, sessionID string, entities []types.Entity) int {
	indexed := 0
	for i := range entities {
		entity := &entities[i]
		vector, err := s.embedder.Embed(ctx, embeddingText(entity))
		if err != nil {
			log.Printf("engine: failed to embed entity %s: %v", entity.EntityID, err)
			continue
		}
		if err := s.store.StoreEmbedding(ctx, sessionID, entity.EntityID, vector, s.embedder.GetModel()); err != nil {
			log.Printf("engine: failed to store embedding for %s: %v", entity.EntityID, err)
			continue
		}
		indexed++
	}
	return indexed
}

// Similar embeds the query text and returns the closest indexed entities.
func (s *SimilarityService) Similar(ctx context.Context, sessionID, query string, limit int) ([]storage.SimilarityMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.store.SimilarEntities(ctx, sessionID, vector, limit)
}

// RemoveEntities drops stored vectors for deleted entities.
func (s *SimilarityService) RemoveEntities(ctx context.Context, sessionID string, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	return s.store.DeleteEmbeddings(ctx, sessionID, entityIDs)
}
