package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/conneroisu/kiln/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve build tools over MCP on stdio",
	Long: `Mcp serves the Model Context Protocol on stdin/stdout so an editor
agent can drive kiln. Tools: build (optional class), status, forget (class,
path) and clear_cache. The resource kiln://config holds the effective
configuration. Output memory lives for the whole session, so repeated builds
only transform what changed.

Logs go to stderr; stdout carries the protocol.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(_ *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	opts := mcpserver.Options{
		Scheduler: a.sched,
		Runner:    a.pipeline,
		Config:    a.cfg,
		Logger:    a.logger,
	}
	if a.cache != nil {
		opts.Cache = a.cache
	}
	return mcpserver.New(opts).ServeStdio()
}
