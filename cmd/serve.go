package cmd

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conneroisu/kiln/internal/server"
)

var serveFlags *StandardFlags

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Build, watch and serve the output with live reload",
	Long: `Serve is the default task: a full build, the watch loop, and a
development server on the output root. HTML pages get a live-reload client
that reloads the page after a rebuild, or only refetches stylesheets when just
the styles class changed.

Endpoints:
  /                    the output root (paths.clean)
  /__kiln/status       per-class status page
  /__kiln/status.json  the same as JSON
  /metrics             pipeline metrics
  /health/live         liveness

Examples:
  kiln serve                    # Serve on localhost:9000
  kiln serve -p 3000 --open     # Another port, open the browser`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	AddStandardFlags(serveCmd, "server")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := SetViperBindings(cmd, serverBindings); err != nil {
		return err
	}

	a, err := newApp(appOptions{live: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	srv := server.New(server.Options{
		Addr:     a.cfg.Server.Address(),
		Root:     afero.NewBasePathFs(a.fs, a.cfg.Paths.Clean),
		Hub:      a.hub,
		Status:   a.sched,
		Registry: a.metrics.Registry(),
		Title:    a.cfg.Server.LogPrefix,
		Open:     a.cfg.Server.Open,
		Logger:   a.logger,
	})

	return watchAndServe(cmd.Context(), a, srv)
}
