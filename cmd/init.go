package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/kiln/internal/config"
)

var (
	initForce   bool
	initMinimal bool
)

var initCmd = &cobra.Command{
	Use:     "init [directory]",
	Aliases: []string{"i"},
	Short:   "Write .kiln.yml and a starter src/ tree",
	Long: `Init writes the default configuration to .kiln.yml and creates the
source layout it expects: src/ pages and templates, src/scss/core/style.scss,
src/js, src/img and src/fonts. Existing files are never overwritten; --force
only replaces .kiln.yml.

Examples:
  kiln init                     # Initialize the current directory
  kiln init site                # Initialize ./site
  kiln init --minimal           # Configuration only`,
	Args:        cobra.MaximumNArgs(1),
	RunE:        runInit,
	Annotations: map[string]string{configOptional: "true"},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing .kiln.yml")
	initCmd.Flags().BoolVar(&initMinimal, "minimal", false, "write the configuration only")
}

// starterFiles is the src/ skeleton written by init.
var starterFiles = map[string]string{
	"src/index.gohtml": `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>kiln</title>
  <link rel="stylesheet" href="css/style.css">
</head>
<body>
  {{template "header" .}}
  <main>
    <p>Edit src/index.gohtml and save.</p>
  </main>
  <script src="js/main.js"></script>
</body>
</html>
`,
	"src/templates/header.gohtml": `<header>
  <h1>kiln{{if not .Production}} (development){{end}}</h1>
</header>
`,
	"src/scss/core/style.scss": `@use "../base/variables" as *;

body {
  font-family: $font-stack;
  color: $text;
}
`,
	"src/scss/base/_variables.scss": `$font-stack: system-ui, sans-serif;
$text: #222;
`,
	"src/js/main.js": `//= lib/greet.js

document.addEventListener("DOMContentLoaded", function () {
  greet("kiln");
});
`,
	"src/js/lib/greet.js": `function greet(name) {
  console.log("hello from " + name);
}
`,
	"src/img/.gitkeep":   "",
	"src/fonts/.gitkeep": "",
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
		if err := validateArgument(dir); err != nil {
			return fmt.Errorf("invalid directory %q: %w", dir, err)
		}
	}

	cfg, err := config.LoadFrom(viper.New())
	if err != nil {
		return err
	}
	// Leave the mode to KILN_ENV / NODE_ENV.
	cfg.Mode = ""

	out := cmd.OutOrStdout()
	if err := config.WriteFile(filepath.Join(dir, config.FileName), cfg, initForce); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", filepath.Join(dir, config.FileName))

	if initMinimal {
		return nil
	}
	return writeStarter(out, dir)
}

func writeStarter(out io.Writer, dir string) error {
	for _, name := range sortedKeys(starterFiles) {
		target := filepath.Join(dir, filepath.FromSlash(name))
		if _, err := os.Stat(target); err == nil {
			fmt.Fprintf(out, "Kept %s\n", target)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
		}
		if err := os.WriteFile(target, []byte(starterFiles[name]), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
		fmt.Fprintf(out, "Wrote %s\n", target)
	}
	return nil
}
