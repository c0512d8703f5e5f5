package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/helicon-ai/mnemo/internal/config"
	"github.com/helicon-ai/mnemo/internal/consolidate"
	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/internal/engine"
	"github.com/helicon-ai/mnemo/internal/privacy"
	"github.com/helicon-ai/mnemo/internal/providers/llm"
	"github.com/helicon-ai/mnemo/internal/providers/rag"
	"github.com/helicon-ai/mnemo/internal/storage/sqlite"
	"github.com/helicon-ai/mnemo/pkg/log"
	"github.com/helicon-ai/mnemo/pkg/srv"
	"github.com/helicon-ai/mnemo/pkg/tokens"
)

const defaultInstructions = "You are a helpful assistant with persistent memory. " +
	"Use the provided memory blocks when they are relevant and cite nothing else as remembered fact."

// deps is the wired object graph shared by the serve, consolidate, and mcp
// commands.
type deps struct {
	appCfg   *config.AppConfig
	policy   config.Policy
	db       *sql.DB
	turns    *sqlite.TurnRepo
	records  *sqlite.RecordRepo
	jobs     *sqlite.JobRepo
	gate     *privacy.Gate
	embedder core.Embedder  // nil when disabled
	gen      core.Generator // nil when provider is none
	counter  tokens.Counter
	pipeline *engine.Pipeline

	cleanups []srv.Service
}

func initDeps(ctx context.Context) *deps {
	logger := log.FromCtx(ctx)

	appCfg := config.NewAppConfig(ctx)

	if err := initEnv(ctx, appCfg.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	policy := config.NewPolicy(ctx)
	llmCfg := config.NewLLMConfig(ctx)
	embedCfg := config.NewEmbeddingConfig(ctx)

	db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	d := &deps{
		appCfg:   appCfg,
		policy:   *policy,
		db:       db,
		turns:    sqlite.NewTurnRepo(db),
		records:  sqlite.NewRecordRepo(db),
		jobs:     sqlite.NewJobRepo(db),
		gate:     privacy.NewGate(policy.StrictPrivacy),
		counter:  tokens.NewCounter(),
		cleanups: []srv.Service{srv.NewCleanup(db.Close)},
	}

	d.embedder = rag.NewEmbedder(ctx, embedCfg)

	gen, err := llm.NewGenerator(ctx, llmCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize LLM provider")
	}
	d.gen = gen

	skills, err := engine.LoadSkills(appCfg.GetSkillsPath(), d.counter)
	if err != nil {
		logger.Fatal().Err(err).Str("path", appCfg.GetSkillsPath()).Msg("failed to load skills")
	}

	var index core.SemanticIndex
	if d.embedder != nil {
		index = sqlite.NewVectorIndex(db)
	}

	d.pipeline = engine.NewPipeline(
		d.policy,
		d.turns,
		engine.NewAggregator(d.records, index, engine.NewScorer(), d.policy.DecayCeiling),
		engine.NewPacker(d.policy, d.gate, d.counter),
		skills,
		d.embedder,
		loadInstructions(ctx, appCfg.GetInstructionsPath()),
	)

	return d
}

func (d *deps) newWorker(ctx context.Context) *consolidate.Worker {
	if d.gen == nil {
		log.FromCtx(ctx).Fatal().Msg("consolidation requires an LLM provider, set MNEMO_LLM_PROVIDER")
	}
	return consolidate.NewWorker(d.jobs, d.records, d.gen, d.embedder, d.gate, d.counter)
}

func loadInstructions(ctx context.Context, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.FromCtx(ctx).Warn().Err(err).Str("path", path).Msg("failed to read instructions")
		}
		return defaultInstructions
	}
	return string(data)
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
