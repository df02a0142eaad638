package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/kiln/internal/build"
	"github.com/conneroisu/kiln/internal/config"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the output root",
	Long: `Clean removes the output root (paths.clean, build/ by default) and
everything below it.`,
	RunE: runClean,
}

var cacheClearCmd = &cobra.Command{
	Use:   "cache-clear",
	Short: "Empty the persisted transform cache",
	Long: `Cache-clear deletes every cached transform result from the cache
database (cache.path). It works whether or not cache.persist is enabled, so a
cache left behind by an earlier configuration can still be emptied.`,
	RunE: runCacheClear,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(cacheClearCmd)
}

func runClean(cmd *cobra.Command, _ []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if err := a.pipeline.Clean(cmd.Context(), a.cfg.Paths.Clean); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", a.cfg.Paths.Clean)
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	path := filepath.FromSlash(cfg.Cache.Path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "No transform cache")
		return nil
	}

	cache, err := build.OpenCache(path)
	if err != nil {
		return err
	}
	defer cache.Close()

	n, err := cache.Clear(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached transforms\n", n)
	return nil
}
