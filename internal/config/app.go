package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/helicon-ai/mnemo/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"MNEMO_RUNTIME_PATH" envDefault:".mnemo"`
	HTTPAddr    string `env:"MNEMO_HTTP_ADDR" envDefault:":8378"`

	// Consolidation worker
	WorkerIntervalSeconds int `env:"MNEMO_WORKER_INTERVAL" envDefault:"60"`
	WorkerBatchSize       int `env:"MNEMO_WORKER_BATCH" envDefault:"5"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse app config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	path := c.RuntimePath
	if !filepath.IsAbs(path) {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path)
	}
	return path
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.GetRuntimePath(), "mnemo.db")
}

func (c AppConfig) GetSkillsPath() string {
	return filepath.Join(c.GetRuntimePath(), "skills.json")
}

func (c AppConfig) GetInstructionsPath() string {
	return filepath.Join(c.GetRuntimePath(), "SYSTEM.md")
}
