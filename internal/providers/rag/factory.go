package rag

import (
	"context"

	"github.com/helicon-ai/mnemo/internal/config"
	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/pkg/log"
)

// NewEmbedder returns nil when embeddings are disabled; callers treat a nil
// embedder as lexical-only retrieval.
func NewEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) core.Embedder {
	if !cfg.Enabled {
		log.FromCtx(ctx).Info().Msg("embeddings disabled, retrieval is lexical only")
		return nil
	}
	log.FromCtx(ctx).Info().
		Str("model", cfg.Model).
		Str("base_url", cfg.BaseURL).
		Msg("starting embedder")
	return NewOllamaEmbedder(cfg.BaseURL, cfg.Model)
}
