package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/kiln/internal/config"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "List the asset classes and their globs",
	Long: `List shows every asset class in build order with its source glob,
output directory, watch glob and bundle name.

Examples:
  kiln list                     # Table
  kiln list -f json             # JSON
  kiln list --format yaml       # YAML`,
	RunE: runList,
}

var listFlags *StandardFlags

func init() {
	rootCmd.AddCommand(listCmd)
	listFlags = AddStandardFlags(listCmd, "output")
}

type classRow struct {
	Class  string `json:"class" yaml:"class"`
	Name   string `json:"name" yaml:"name"`
	Source string `json:"source" yaml:"source"`
	Output string `json:"output" yaml:"output"`
	Watch  string `json:"watch" yaml:"watch"`
	Bundle string `json:"bundle,omitempty" yaml:"bundle,omitempty"`
	Cached bool   `json:"cached" yaml:"cached"`
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return writeClasses(cmd.OutOrStdout(), classRows(cfg), listFlags.Format)
}

func classRows(cfg *config.Config) []classRow {
	title := cases.Title(language.English)
	cached := cfg.CachedClasses()

	rows := make([]classRow, 0, len(cfg.Specs()))
	for _, spec := range cfg.Specs() {
		rows = append(rows, classRow{
			Class:  string(spec.Class),
			Name:   title.String(string(spec.Class)),
			Source: spec.Source,
			Output: spec.Output,
			Watch:  spec.WatchGlob(),
			Bundle: spec.Bundle,
			Cached: cached[spec.Class],
		})
	}
	return rows
}

func writeClasses(w io.Writer, rows []classRow, format string) error {
	switch strings.ToLower(format) {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(rows)
	case "", "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CLASS\tSOURCE\tOUTPUT\tWATCH\tBUNDLE")
		for _, r := range rows {
			bundle := r.Bundle
			if bundle == "" {
				bundle = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Source, r.Output, r.Watch, bundle)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
