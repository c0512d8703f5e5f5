package config

import (
	"context"

	"github.com/caarlos0/env/v11"

	"github.com/helicon-ai/mnemo/pkg/log"
)

type EmbeddingConfig struct {
	// Enabled toggles the semantic index. When off (or the embedding
	// endpoint is unreachable) retrieval degrades to lexical scoring.
	Enabled bool   `env:"MNEMO_EMBEDDING_ENABLED" envDefault:"false"`
	Model   string `env:"MNEMO_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	BaseURL string `env:"MNEMO_EMBEDDING_BASE_URL" envDefault:"http://localhost:11434"`
}

func NewEmbeddingConfig(ctx context.Context) *EmbeddingConfig {
	c := &EmbeddingConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse embedding config")
	}
	return c
}
