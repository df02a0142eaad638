package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/kiln/internal/asset"
	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// Sass compiles SCSS and indented Sass by running the sass CLI with the
// source on stdin. Plain CSS passes through.
type Sass struct {
	binary string
	// root is the project directory on disk; load paths are resolved from it.
	root   string
	parser *kerrors.Parser
}

// NewSass creates the sass step.
func NewSass(binary, root string) *Sass {
	if binary == "" {
		binary = "sass"
	}
	return &Sass{binary: binary, root: root, parser: kerrors.NewParser()}
}

// Transform implements Transformer.
func (s *Sass) Transform(ctx context.Context, in asset.Asset) (*Result, error) {
	ext := path.Ext(in.Path)
	if ext != ".scss" && ext != ".sass" {
		return &Result{Asset: in}, nil
	}

	args := []string{
		"--stdin",
		"--no-source-map",
		"--load-path=" + filepath.Join(s.root, filepath.FromSlash(path.Dir(in.Path))),
		"--load-path=" + s.root,
	}
	if ext == ".sass" {
		args = append(args, "--indented")
	}

	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Dir = s.root
	cmd.Stdin = bytes.NewReader(in.Content)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, kerrors.NewTransformError(kerrors.ErrCodeCompilerMissing,
				fmt.Sprintf("%s not found on PATH", s.binary), err).WithFile(in.Path)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, kerrors.ErrTransformFailed(string(asset.Styles), in.Path, s.describe(in.Path, stderr.String(), err))
	}

	return &Result{Asset: asset.Asset{Path: in.Path, Content: stdout.Bytes()}}, nil
}

func (s *Sass) describe(file, stderr string, runErr error) error {
	perr := s.parser.First(stderr)
	if perr == nil {
		if msg := strings.TrimSpace(stderr); msg != "" {
			return errors.New(msg)
		}
		return runErr
	}
	if perr.File == "-" || perr.File == "" {
		perr.File = file
	}
	return fmt.Errorf("%s: %s", perr.Location(), perr.Message)
}

// CSS lowers and optionally minifies stylesheets with esbuild. Lowering for
// the configured browser targets adds the vendor prefixes those engines need.
type CSS struct {
	engines []api.Engine
	mode    asset.Mode
}

// NewCSS creates the CSS step.
func NewCSS(targets []string, mode asset.Mode) (*CSS, error) {
	engines, err := ParseTargets(targets)
	if err != nil {
		return nil, err
	}
	return &CSS{engines: engines, mode: mode}, nil
}

// Transform implements Transformer.
func (c *CSS) Transform(_ context.Context, in asset.Asset) (*Result, error) {
	opts := api.TransformOptions{
		Loader:     api.LoaderCSS,
		Engines:    c.engines,
		Sourcefile: in.Path,
		LogLevel:   api.LogLevelSilent,
	}
	if c.mode.Minify() {
		opts.MinifyWhitespace = true
		opts.MinifySyntax = true
	}
	if c.mode.SourceMaps() {
		opts.Sourcemap = api.SourceMapInline
	}

	res := api.Transform(string(in.Content), opts)
	if len(res.Errors) > 0 {
		return nil, kerrors.ErrTransformFailed(string(asset.Styles), in.Path, esbuildError(res.Errors))
	}
	return &Result{Asset: asset.Asset{Path: in.Path, Content: res.Code}}, nil
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// ParseTargets turns strings like "chrome58" or "safari11.1" into esbuild
// engines.
func ParseTargets(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, t := range targets {
		t = strings.ToLower(strings.TrimSpace(t))
		i := strings.IndexAny(t, "0123456789")
		if i <= 0 {
			return nil, kerrors.NewConfigError(kerrors.ErrCodeConfigInvalid, "invalid browser target "+t, nil)
		}
		name, ok := engineNames[t[:i]]
		if !ok {
			return nil, kerrors.NewConfigError(kerrors.ErrCodeConfigInvalid, "unknown browser "+t[:i], nil)
		}
		engines = append(engines, api.Engine{Name: name, Version: t[i:]})
	}
	return engines, nil
}

func esbuildError(msgs []api.Message) error {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column+1, m.Text))
			continue
		}
		parts = append(parts, m.Text)
	}
	return errors.New(strings.Join(parts, "; "))
}
