package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/kiln/internal/asset"
	"github.com/conneroisu/kiln/internal/build"
)

var buildClean bool

var buildCmd = &cobra.Command{
	Use:     "build [class...]",
	Aliases: []string{"b"},
	Short:   "Build every asset class, or only the named ones",
	Long: `Build runs the pipeline once per asset class in declared order
(markup, styles, scripts, images, fonts). Files whose signature is unchanged
since the last run are skipped, so within one process a second build
transforms nothing.

A file that fails to transform is reported and notified; the rest of the
class and the other classes still build, and the exit status stays zero.
Only configuration errors and an output directory that cannot be created
are fatal.

Examples:
  kiln build                    # Build all classes
  kiln build styles scripts     # Build two classes
  kiln build --production       # Minify, no source maps
  kiln build --clean            # Remove the output root first`,
	Args: cobra.OnlyValidArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.ValidArgs = classNames()
	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "remove the output root before building")
}

func runBuild(cmd *cobra.Command, args []string) error {
	classes, err := parseClasses(args)
	if err != nil {
		return err
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer a.Close(context.Background())

	if buildClean {
		if err := a.pipeline.Clean(ctx, a.cfg.Paths.Clean); err != nil {
			return err
		}
	}

	start := time.Now()
	reports, err := buildClasses(ctx, a, classes)
	printReports(cmd.OutOrStdout(), reports)
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "Build finished",
		"mode", a.cfg.Mode,
		"classes", len(reports),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// buildClasses runs the named classes in declared order, or all of them.
func buildClasses(ctx context.Context, a *app, classes []asset.Class) ([]*build.Report, error) {
	if len(classes) == 0 {
		return a.sched.Build(ctx)
	}
	reports := make([]*build.Report, 0, len(classes))
	for _, class := range classes {
		report, err := a.sched.BuildClass(ctx, class)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// parseClasses parses class arguments into declared order, dropping duplicates.
func parseClasses(args []string) ([]asset.Class, error) {
	seen := make(map[asset.Class]bool, len(args))
	for _, arg := range args {
		class, err := asset.ParseClass(arg)
		if err != nil {
			return nil, err
		}
		seen[class] = true
	}
	out := make([]asset.Class, 0, len(seen))
	for _, class := range asset.Classes() {
		if seen[class] {
			out = append(out, class)
		}
	}
	return out, nil
}

func printReports(w io.Writer, reports []*build.Report) {
	if len(reports) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tFILES\tTRANSFORMED\tSKIPPED\tWRITTEN\tREMOVED\tFAILED\tTIME")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Class, r.Resolved, len(r.Transformed), len(r.Skipped), len(r.Written),
			len(r.Removed), len(r.Failures), r.Duration.Round(time.Millisecond))
	}
	tw.Flush()

	for _, r := range reports {
		for _, msg := range r.FailureMessages() {
			fmt.Fprintf(w, "  %s: %s\n", r.Class, msg)
		}
	}
}

func classNames() []string {
	classes := asset.Classes()
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = string(c)
	}
	return out
}
