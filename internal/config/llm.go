package config

import (
	"context"

	"github.com/caarlos0/env/v11"

	"github.com/helicon-ai/mnemo/pkg/log"
)

type LLMConfig struct {
	Provider string `env:"MNEMO_LLM_PROVIDER" envDefault:"ollama"`
	Model    string `env:"MNEMO_LLM_MODEL" envDefault:"llama3.1"`
	APIKey   string `env:"MNEMO_LLM_API_KEY"`
	BaseURL  string `env:"MNEMO_LLM_BASE_URL" envDefault:"http://localhost:11434"`

	// SummaryMaxTokens bounds generation for consolidation calls.
	SummaryMaxTokens int `env:"MNEMO_SUMMARY_MAX_TOKENS" envDefault:"512"`
}

func NewLLMConfig(ctx context.Context) *LLMConfig {
	c := &LLMConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse llm config")
	}
	return c
}
