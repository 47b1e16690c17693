package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/diagramflow/pkg/diagramflow/mcp"
)

func newMCPCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the generator to MCP clients over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the
generate_diagram and get_canvas tools. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, rootOpts, appOptions{})
			if err != nil {
				return err
			}
			defer closeQuietly(a)

			if err := mcp.NewServer(a.gen, version, mcp.WithLogger(a.logger)).Serve(); err != nil {
				return wrapExit(exitFailure, "mcp server failed", err)
			}
			return nil
		},
	}
}
