package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolmesh/routecore/internal/mcpserver"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP stdio server",
		Long: `Serve starts the MCP server over stdio, exposing the search and route
operations to an AI agent client. Equivalent to running the routecored
binary directly; kept here so a single routecore binary can stand in for
both the CLI and the MCP adapter.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	return cmd
}

func runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, projectRoot(), offlineFlag)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := mcpserver.NewServer(a.orch)
	if err != nil {
		return fmt.Errorf("failed to build MCP server: %w", err)
	}
	return srv.Serve(ctx)
}
