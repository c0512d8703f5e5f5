package main

import (
	"github.com/spf13/cobra"

	"github.com/helicon-ai/mnemo/internal/server"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve recall and remember tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		d := initDeps(ctx)
		defer d.db.Close()

		m := server.NewMCP(d.pipeline, d.records, d.jobs, d.gate, d.embedder, d.counter)
		return m.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
