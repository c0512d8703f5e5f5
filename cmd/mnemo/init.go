package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helicon-ai/mnemo/internal/config"
	"github.com/helicon-ai/mnemo/internal/setup"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive first-run setup",
	Long:  `Walks through provider, model, and embedding configuration and writes the runtime directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		appCfg := config.NewAppConfig(ctx)
		if _, err := setup.RunWizard(appCfg.GetRuntimePath()); err != nil {
			return err
		}

		fmt.Printf("mnemo configured at %s. Run 'mnemo serve' to start.\n", appCfg.GetRuntimePath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
