package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helicon-ai/mnemo/internal/core"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mnemo version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", core.AppName, core.AppVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
