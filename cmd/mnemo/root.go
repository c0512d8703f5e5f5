package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/helicon-ai/mnemo/internal/config"
	"github.com/helicon-ai/mnemo/pkg/log"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Memory scoring, budgeting, and consolidation for agents",
	Long: `Mnemo assembles token-budgeted context windows from short-term
conversation history, long-term memory, and skill fragments, and
consolidates conversations into durable memory in the background.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithLogger(ctx, isDebug)
}
