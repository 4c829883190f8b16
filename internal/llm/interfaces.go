package llm

import "context"

// TextGenerator is the interface for LLM text completion. All agent
// prompts use single-string completion style (not multi-turn chat); the
// conversation history is folded into the prompt.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings
// of entity names and values for similarity search.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
