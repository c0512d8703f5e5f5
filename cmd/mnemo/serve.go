package main

import (
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/helicon-ai/mnemo/internal/server"
	"github.com/helicon-ai/mnemo/pkg/log"
	"github.com/helicon-ai/mnemo/pkg/srv"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the consolidation worker",
	Long:  `Serves turn ingestion, context assembly, and record management over HTTP while the background worker drains the consolidation queue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting mnemo")

		d := initDeps(ctx)

		services := d.cleanups
		services = append(services, server.New(
			d.appCfg.HTTPAddr,
			d.policy,
			d.pipeline,
			d.turns,
			d.records,
			d.jobs,
			d.gate,
			d.embedder,
			d.counter,
		))

		if d.gen != nil {
			worker := d.newWorker(ctx)
			worker.Interval = time.Duration(d.appCfg.WorkerIntervalSeconds) * time.Second
			worker.BatchSize = d.appCfg.WorkerBatchSize
			services = append(services, worker)
		} else {
			logger.Warn().Msg("no LLM provider configured, consolidation jobs will stay pending")
		}

		srv.StartServices(ctx, services)
		srv.ShutdownServices(ctx, services)

		logger.Info().Msg("mnemo has been shut down gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
