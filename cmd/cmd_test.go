package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/kiln/internal/asset"
	"github.com/conneroisu/kiln/internal/config"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/version"
)

// project switches into a fresh directory with a clean global viper.
func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	viper.Reset()
	viper.Set("mode", string(asset.Development))
	viper.Set("notify.desktop", false)
	viper.Set("log.level", "error")
	t.Cleanup(viper.Reset)
	return dir
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&out)
	return cmd, &out
}

func write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

func TestParseClasses(t *testing.T) {
	classes, err := parseClasses([]string{"fonts", "Markup", "fonts"})
	require.NoError(t, err)
	assert.Equal(t, []asset.Class{asset.Markup, asset.Fonts}, classes)

	classes, err = parseClasses(nil)
	require.NoError(t, err)
	assert.Empty(t, classes)

	_, err = parseClasses([]string{"videos"})
	assert.Error(t, err)
}

func TestInitCommand(t *testing.T) {
	project(t)
	initForce, initMinimal = false, false

	cmd, out := testCommand()
	require.NoError(t, runInit(cmd, nil))

	assert.FileExists(t, config.FileName)
	for name := range starterFiles {
		assert.FileExists(t, filepath.FromSlash(name))
	}
	assert.Contains(t, out.String(), "Wrote src/index.gohtml")

	var written map[string]interface{}
	data, err := os.ReadFile(config.FileName)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &written))
	assert.Equal(t, "", written["mode"])

	// A second run keeps everything and refuses to replace the config.
	assert.Error(t, runInit(cmd, nil))

	initForce = true
	t.Cleanup(func() { initForce = false })
	write(t, "src/js/main.js", "custom")
	out.Reset()
	require.NoError(t, runInit(cmd, nil))
	assert.Contains(t, out.String(), "Kept src/js/main.js")
	data, err = os.ReadFile("src/js/main.js")
	require.NoError(t, err)
	assert.Equal(t, "custom", string(data))
}

func TestInitCommandMinimalInDirectory(t *testing.T) {
	project(t)
	initMinimal = true
	t.Cleanup(func() { initMinimal = false })

	cmd, _ := testCommand()
	require.NoError(t, runInit(cmd, []string{"site"}))
	assert.FileExists(t, filepath.Join("site", config.FileName))
	assert.NoDirExists(t, filepath.Join("site", "src"))

	assert.Error(t, runInit(cmd, []string{"../escape"}))
}

func TestBuildCommand(t *testing.T) {
	project(t)
	buildClean = false

	write(t, "src/js/a.js", "function a(){ return 1 + 1 }")
	write(t, "src/js/lib/b.js", "var b = 2")
	write(t, "src/fonts/a.woff", "font")

	cmd, out := testCommand()
	require.NoError(t, runBuild(cmd, []string{"scripts", "fonts"}))

	assert.FileExists(t, "build/js/a.js")
	assert.FileExists(t, "build/js/lib/b.js")
	assert.FileExists(t, "build/fonts/a.woff")
	assert.NoFileExists(t, "build/index.html")
	assert.Contains(t, out.String(), "CLASS")
	assert.Contains(t, out.String(), "scripts")
}

func TestBuildCommandReportsFailuresWithoutFailing(t *testing.T) {
	project(t)
	buildClean = false

	write(t, "src/js/bad.js", "function (")
	write(t, "src/js/good.js", "var ok = 1")

	cmd, out := testCommand()
	require.NoError(t, runBuild(cmd, []string{"scripts"}))
	assert.FileExists(t, "build/js/good.js")
	assert.NoFileExists(t, "build/js/bad.js")
	assert.Contains(t, out.String(), "scripts: src/js/bad.js: ")
}

func TestBuildCommandClean(t *testing.T) {
	project(t)
	write(t, "build/stale.txt", "old")
	write(t, "src/fonts/a.woff", "font")

	buildClean = true
	t.Cleanup(func() { buildClean = false })

	cmd, _ := testCommand()
	require.NoError(t, runBuild(cmd, []string{"fonts"}))
	assert.NoFileExists(t, "build/stale.txt")
	assert.FileExists(t, "build/fonts/a.woff")
}

func TestBuildCommandInvalidConfig(t *testing.T) {
	project(t)
	viper.Set("paths.src.scripts", "src/js/[")

	cmd, _ := testCommand()
	assert.Error(t, runBuild(cmd, nil))
}

func TestReadConfig(t *testing.T) {
	t.Setenv("KILN_CONFIG_FILE", "")
	t.Cleanup(func() { cfgFile = "" })

	t.Run("missing default file", func(t *testing.T) {
		project(t)
		cfgFile = ""
		assert.NoError(t, readConfig())
	})

	t.Run("malformed file", func(t *testing.T) {
		project(t)
		cfgFile = ""
		write(t, config.FileName, "paths:\n  src: [unterminated")

		err := readConfig()
		require.Error(t, err)
		assert.True(t, kerrors.IsConfigError(err))
	})

	t.Run("named file missing", func(t *testing.T) {
		project(t)
		cfgFile = "does-not-exist.yml"

		err := readConfig()
		require.Error(t, err)
		assert.True(t, kerrors.IsConfigError(err))
	})

	t.Run("named by environment", func(t *testing.T) {
		project(t)
		cfgFile = ""
		write(t, "kiln.prod.yml", "server:\n  port: 9100\n")
		t.Setenv("KILN_CONFIG_FILE", "kiln.prod.yml")

		require.NoError(t, readConfig())
		assert.Equal(t, 9100, viper.GetInt("server.port"))
	})
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		cfgFile = ""
		configErr = nil
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsRejectUnreadableConfig(t *testing.T) {
	t.Setenv("KILN_CONFIG_FILE", "")
	project(t)
	write(t, config.FileName, "paths:\n  src: [unterminated")
	write(t, "src/js/main.js", "let a = 1")

	_, err := executeRoot(t, "build")
	require.Error(t, err)
	assert.True(t, kerrors.IsConfigError(err))
	assert.NoDirExists(t, "build")

	_, err = executeRoot(t, "build", "--config", "does-not-exist.yml")
	require.Error(t, err)
	assert.True(t, kerrors.IsConfigError(err))

	t.Cleanup(func() { versionShort = false })
	out, err := executeRoot(t, "version", "--short")
	require.NoError(t, err, "version needs no configuration")
	assert.NotEmpty(t, out)
}

func TestCleanAndCacheClear(t *testing.T) {
	project(t)
	write(t, "build/index.html", "<p/>")

	cmd, out := testCommand()
	require.NoError(t, runClean(cmd, nil))
	assert.NoDirExists(t, "build")
	assert.Contains(t, out.String(), "Removed build")

	out.Reset()
	require.NoError(t, runCacheClear(cmd, nil))
	assert.Contains(t, out.String(), "No transform cache")
}

func TestCacheClearWithPersistedCache(t *testing.T) {
	project(t)
	viper.Set("cache.persist", true)
	viper.Set("cache.classes", []string{"fonts"})
	write(t, "src/fonts/a.woff", "font")

	cmd, out := testCommand()
	require.NoError(t, runBuild(cmd, []string{"fonts"}))
	assert.FileExists(t, filepath.FromSlash(".kiln/cache.db"))

	out.Reset()
	require.NoError(t, runCacheClear(cmd, nil))
	assert.Contains(t, out.String(), "Cleared 1 cached transforms")
}

func TestWriteClasses(t *testing.T) {
	project(t)
	cfg, err := config.Load()
	require.NoError(t, err)
	rows := classRows(cfg)
	require.Len(t, rows, len(asset.Classes()))
	assert.Equal(t, "Markup", rows[0].Name)
	assert.Equal(t, "src/scss/**/*.scss", rows[1].Watch)

	var buf bytes.Buffer
	require.NoError(t, writeClasses(&buf, rows, "table"))
	assert.Contains(t, buf.String(), "Styles")
	assert.Contains(t, buf.String(), "build/css")

	buf.Reset()
	require.NoError(t, writeClasses(&buf, rows, "json"))
	var decoded []classRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, rows, decoded)

	buf.Reset()
	require.NoError(t, writeClasses(&buf, rows, "yaml"))
	assert.Contains(t, buf.String(), "class: scripts")

	assert.Error(t, writeClasses(&buf, rows, "csv"))
}

func TestWatchDirs(t *testing.T) {
	dir := project(t)
	for _, d := range []string{"src/js", "src/scss/core", "src/img"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
	}
	viper.Set("paths.src.markup", "pages/*.gohtml")
	viper.Set("paths.watch.markup", "pages/**/*.gohtml")
	require.NoError(t, os.MkdirAll("pages", 0o755))

	a, err := newApp(appOptions{})
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Equal(t, []string{"pages", "src/img", "src/js", "src/scss"}, watchDirs(a))
}

func TestWithin(t *testing.T) {
	assert.True(t, within("src/js", "src"))
	assert.True(t, within("src", "src"))
	assert.True(t, within("anything", "."))
	assert.False(t, within("src-old/js", "src"))
	assert.False(t, within("sr", "src"))
}

func TestFlagValidation(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	flags := AddStandardFlags(cmd, "server", "output")

	require.NoError(t, cmd.Flags().Set("port", "3000"))
	assert.Equal(t, 3000, flags.Port)
	assert.Error(t, cmd.Flags().Set("port", "70000"))
	assert.Error(t, cmd.Flags().Set("format", "csv"))
	require.NoError(t, cmd.Flags().Set("format", "json"))
	assert.Equal(t, "json", flags.Format)
}

func TestSetViperBindings(t *testing.T) {
	project(t)
	cmd := &cobra.Command{Use: "x"}
	AddStandardFlags(cmd, "server")

	require.NoError(t, SetViperBindings(cmd, serverBindings))
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)

	require.NoError(t, cmd.Flags().Set("port", "3000"))
	require.NoError(t, SetViperBindings(cmd, serverBindings))
	cfg, err = config.Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestWriteVersion(t *testing.T) {
	info := version.Info{Version: "v1.2.3", GitCommit: "abcdef1234567", GoVersion: "go1.24.4", Platform: "linux/amd64"}

	var buf bytes.Buffer
	require.NoError(t, writeVersion(&buf, info, "text", true))
	assert.Equal(t, info.Short()+"\n", buf.String())

	buf.Reset()
	require.NoError(t, writeVersion(&buf, info, "json", false))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "v1.2.3", decoded["version"])
	assert.Equal(t, true, decoded["is_release"])

	assert.Error(t, writeVersion(&buf, info, "xml", false))
}
