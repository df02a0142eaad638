package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/kiln/internal/scanner"
	"github.com/conneroisu/kiln/internal/server"
	"github.com/conneroisu/kiln/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Build, then rebuild classes as their files change",
	Long: `Watch performs a full build, then watches the source tree. A change is
routed to every class whose watch glob matches it: changed sources are
rebuilt, pages that include a changed partial are rebuilt, and deleted sources
are removed from the output without running any transform.

Examples:
  kiln watch                    # Watch without the dev server
  kiln watch --production       # Watch with production transforms`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	return watchAndServe(cmd.Context(), a, nil)
}

// watchAndServe builds everything, then runs the watch loop and, when srv is
// set, the dev server until SIGINT/SIGTERM.
func watchAndServe(parent context.Context, a *app, srv *server.Server) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.sched.Build(ctx); err != nil {
		return err
	}

	fw, err := newWatcher(a)
	if err != nil {
		return err
	}
	defer fw.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return fw.Start(gctx)
	})
	g.Go(func() error {
		err := a.sched.Watch(gctx, fw.Events())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if srv != nil {
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}

	a.logger.Info(ctx, "Watching for changes", "dirs", watchDirs(a))
	err = g.Wait()
	a.logger.Info(context.Background(), "Stopped")
	return err
}

func newWatcher(a *app) (*watcher.FileWatcher, error) {
	debounce := a.cfg.Watch.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	fw, err := watcher.NewFileWatcher(a.root, debounce, a.logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoEditorFilter)
	fw.AddFilter(watcher.IgnoreDirs(a.cfg.Paths.Clean, ".kiln", "node_modules"))

	for _, dir := range watchDirs(a) {
		if err := fw.AddRecursive(dir); err != nil {
			fw.Stop()
			return nil, err
		}
	}
	return fw, nil
}

// watchDirs returns the existing static bases of every source and watch
// glob, with nested directories folded into their parent.
func watchDirs(a *app) []string {
	var bases []string
	for _, spec := range a.cfg.Specs() {
		for _, pattern := range []string{spec.Source, spec.WatchGlob()} {
			base := scanner.Base(pattern)
			if _, err := a.fs.Stat(base); err != nil {
				continue
			}
			bases = append(bases, base)
		}
	}
	sort.Strings(bases)

	var out []string
next:
	for _, base := range bases {
		for _, dir := range out {
			if within(base, dir) {
				continue next
			}
		}
		out = append(out, base)
	}
	return out
}

func within(p, dir string) bool {
	if dir == "." || p == dir {
		return true
	}
	rel := path.Clean(p)
	return len(rel) > len(dir) && rel[:len(dir)] == dir && rel[len(dir)] == '/'
}
