// Package cmd provides the command-line interface for kiln with configuration
// loaded from multiple sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --production, --port, etc.) - highest priority
//	2. KILN_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (KILN_SERVER_PORT, KILN_MODE, etc.)
//	4. Configuration file (.kiln.yml) - lowest priority
//
// Environment Variables:
//
//	KILN_CONFIG_FILE: Path to custom configuration file
//	KILN_MODE: development or production
//	KILN_ENV, NODE_ENV: consulted for the mode when KILN_MODE is unset
//	And the rest following the KILN_<SECTION>_<OPTION> pattern
package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/kiln/internal/asset"
	"github.com/conneroisu/kiln/internal/config"
	kerrors "github.com/conneroisu/kiln/internal/errors"
)

var (
	cfgFile    string
	production bool

	// configErr is the failure of the last readConfig, reported before any
	// command that needs configuration runs.
	configErr error
)

// configOptional marks commands that run without a readable configuration.
const configOptional = "config-optional"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Incremental front-end asset pipeline with live reload",
	Long: `kiln builds a static front-end from src/ into build/: markup pages with
partials, SCSS, JavaScript, images and fonts. Only files that changed since
the last run are transformed, deleted sources disappear from the output, and
a development server reloads the browser after every rebuild.

Running kiln without a command builds everything, then watches and serves.

Quick Start:
  kiln init                  Write .kiln.yml and the src/ skeleton
  kiln                       Build, watch and serve on localhost:9000
  kiln build --production    Minified build without source maps
  kiln build styles          Build one asset class
  kiln clean                 Remove the output directory`,
	SilenceUsage:      true,
	PersistentPreRunE: applyGlobalFlags,
	RunE:              runDefault,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .kiln.yml, can also use KILN_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&production, "production", false, "production mode: minify, no source maps")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	serveFlags = AddStandardFlags(rootCmd, "server")
}

func initConfig() {
	configErr = readConfig()
}

// readConfig points viper at the configuration file and environment and
// reads the file.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. KILN_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .kiln.yml in current directory
//
// Only a missing default file falls back to defaults. A named file that is
// missing and any file that cannot be parsed are configuration errors.
func readConfig() error {
	explicit := cfgFile
	if explicit == "" {
		explicit = os.Getenv("KILN_CONFIG_FILE")
	}
	if explicit != "" {
		viper.SetConfigFile(explicit)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(strings.TrimSuffix(config.FileName, ".yml"))
	}

	// KILN_SERVER_PORT, KILN_BUILD_WORKERS, ...
	viper.SetEnvPrefix("KILN")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// mode has no default, so AutomaticEnv alone would never see KILN_MODE.
	_ = viper.BindEnv("mode")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit == "" && errors.As(err, &notFound) {
			return nil
		}
		return kerrors.NewConfigError(kerrors.ErrCodeConfigInvalid, "cannot read configuration file", err)
	}
	fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	return nil
}

// applyGlobalFlags reports a configuration file that could not be read and
// folds flags that override configuration keys into viper.
func applyGlobalFlags(cmd *cobra.Command, _ []string) error {
	if configErr != nil && cmd.Annotations[configOptional] == "" {
		return configErr
	}
	if production {
		viper.Set("mode", string(asset.Production))
	}
	return nil
}

func runDefault(cmd *cobra.Command, _ []string) error {
	return runServe(cmd, nil)
}
