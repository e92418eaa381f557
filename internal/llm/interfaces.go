package llm

import "context"

// TextGenerator is the interface for LLM chat completion. Summarization
// sends a system instruction plus a user message carrying the text.
type TextGenerator interface {
	Complete(ctx context.Context, system, user string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Dimensions is fixed per generator; the vector store sizes its index by it.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	GetModel() string
}
