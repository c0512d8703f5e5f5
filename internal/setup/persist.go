package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/helicon-ai/mnemo/pkg/env"
)

// envFile mirrors the environment keys the wizard collects; zero-valued
// fields are omitted from the written file so runtime defaults apply.
type envFile struct {
	Provider         string `env:"MNEMO_LLM_PROVIDER"`
	BaseURL          string `env:"MNEMO_LLM_BASE_URL"`
	APIKey           string `env:"MNEMO_LLM_API_KEY"`
	Model            string `env:"MNEMO_LLM_MODEL"`
	EmbeddingEnabled bool   `env:"MNEMO_EMBEDDING_ENABLED"`
}

const defaultSystemMD = `You are a helpful assistant with persistent memory.
Use the provided memory blocks when they are relevant and cite nothing else
as remembered fact.
`

const defaultSkillsJSON = `[
  {
    "id": "code-review",
    "pattern": "review|refactor|lint",
    "priority": 1,
    "content": "When reviewing code, check error handling, naming, and test coverage before style.",
    "tags": ["code"]
  }
]
`

// Persist writes the collected configuration to <runtime>/.env and seeds the
// runtime directory with starter instruction and skill files. An existing
// .env is never overwritten.
func Persist(runtimePath string, state *State) error {
	if err := os.MkdirAll(runtimePath, 0755); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}

	envPath := filepath.Join(runtimePath, ".env")
	if _, err := os.Stat(envPath); err == nil {
		return fmt.Errorf(".env already exists at %s", envPath)
	}

	f := envFile{
		Provider: state.EnvVars["MNEMO_LLM_PROVIDER"],
		BaseURL:  state.EnvVars["MNEMO_LLM_BASE_URL"],
		APIKey:   state.EnvVars["MNEMO_LLM_API_KEY"],
		Model:    state.EnvVars["MNEMO_LLM_MODEL"],
	}
	f.EmbeddingEnabled, _ = strconv.ParseBool(state.EnvVars["MNEMO_EMBEDDING_ENABLED"])

	content, err := env.MarshalEnv(&f)
	if err != nil {
		return fmt.Errorf("marshal env: %w", err)
	}
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("write .env: %w", err)
	}

	seeds := map[string]string{
		"SYSTEM.md":   defaultSystemMD,
		"skills.json": defaultSkillsJSON,
	}
	for name, body := range seeds {
		dst := filepath.Join(runtimePath, name)
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := os.WriteFile(dst, []byte(body), 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
