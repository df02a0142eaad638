// Package testutils builds throwaway kiln projects for tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/kiln/internal/config"
)

// Project is a temporary project directory laid out like the default
// configuration expects.
type Project struct {
	t    *testing.T
	Root string
	// Fs is rooted at Root.
	Fs afero.Fs

	tick int
}

// baseTime anchors fixture mtimes so successive writes never share one.
var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// CreateTempProject creates a temporary project structure for testing
func CreateTempProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()

	dirs := []string{
		"src/templates",
		"src/scss/core",
		"src/js",
		"src/img",
		"src/fonts",
	}
	for _, dir := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755))
	}

	return &Project{t: t, Root: root, Fs: afero.NewBasePathFs(afero.NewOsFs(), root)}
}

// Path returns the absolute path of a project-relative path.
func (p *Project) Path(rel string) string {
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// Write writes a project file, creating parent directories. Every write gets
// a strictly later mtime than the previous one.
func (p *Project) Write(rel, content string) {
	p.t.Helper()
	abs := p.Path(rel)
	require.NoError(p.t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(p.t, os.WriteFile(abs, []byte(content), 0o644))

	p.tick++
	stamp := baseTime.Add(time.Duration(p.tick) * time.Second)
	require.NoError(p.t, os.Chtimes(abs, stamp, stamp))
}

// Read returns the content of a project file.
func (p *Project) Read(rel string) string {
	p.t.Helper()
	data, err := os.ReadFile(p.Path(rel))
	require.NoError(p.t, err)
	return string(data)
}

// Exists reports whether a project file exists.
func (p *Project) Exists(rel string) bool {
	_, err := os.Stat(p.Path(rel))
	return err == nil
}

// Remove deletes a project file.
func (p *Project) Remove(rel string) {
	p.t.Helper()
	require.NoError(p.t, os.Remove(p.Path(rel)))
}

// Config loads the default configuration; mutate may override keys before
// it is decoded.
func (p *Project) Config(mutate ...func(v *viper.Viper)) *config.Config {
	p.t.Helper()
	v := viper.New()
	v.Set("mode", "development")
	for _, m := range mutate {
		m(v)
	}
	cfg, err := config.LoadFrom(v)
	require.NoError(p.t, err)
	return cfg
}

// AssertFilePermissions checks that files have the expected permissions
func AssertFilePermissions(t *testing.T, path string, expectedMode os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)

	actualMode := info.Mode()
	require.Equal(t, expectedMode, actualMode&os.FileMode(0o777),
		"File %s has incorrect permissions: got %o, want %o",
		path, actualMode&os.FileMode(0o777), expectedMode)
}

// WaitFor polls cond until it holds or the timeout expires.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(t *testing.T, filePath string, originalModTime time.Time, timeout time.Duration) {
	t.Helper()
	WaitFor(t, timeout, func() bool {
		info, err := os.Stat(filePath)
		return err == nil && info.ModTime().After(originalModTime)
	})
}
