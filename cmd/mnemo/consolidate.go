package main

import (
	"github.com/spf13/cobra"

	"github.com/helicon-ai/mnemo/pkg/log"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Process one batch of pending consolidation jobs and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		d := initDeps(ctx)
		defer d.db.Close()

		worker := d.newWorker(ctx)
		processed, err := worker.RunOnce(ctx)
		if err != nil {
			return err
		}

		log.FromCtx(ctx).Info().Int("processed", processed).Msg("consolidation batch complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consolidateCmd)
}
