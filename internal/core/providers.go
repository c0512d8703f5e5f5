package core

import "context"

// Generator is the text-generation boundary. Only the consolidation worker
// uses it; a failed or empty result degrades to documented fallbacks and is
// never fatal for a whole job.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SemanticHit is one result from the optional vector index.
type SemanticHit struct {
	ID         string
	Content    string
	Similarity float64
}

// SemanticIndex is the optional vector-search boundary. When absent the
// aggregator degrades to lexical-only scoring without error.
type SemanticIndex interface {
	Search(ctx context.Context, queryEmbedding []float32, threshold float64, count int) ([]SemanticHit, error)
}
