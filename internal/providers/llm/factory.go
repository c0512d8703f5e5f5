package llm

import (
	"context"
	"fmt"

	"github.com/helicon-ai/mnemo/internal/config"
	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/pkg/log"
)

// NewGenerator creates the text-generation provider for the consolidation
// worker based on configuration.
func NewGenerator(ctx context.Context, cfg *config.LLMConfig) (core.Generator, error) {
	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("starting llm provider")

	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "openai", "openrouter", "custom":
		return NewOpenAICompatible(OpenAICompatibleConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			AuthHeader: "Authorization",
			AuthPrefix: "Bearer ",
		}), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
