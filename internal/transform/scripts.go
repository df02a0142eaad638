package transform

import (
	"context"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/kiln/internal/asset"
	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// JS minifies scripts with esbuild. Minification is unconditional; the
// development mode only adds an inline source map.
type JS struct {
	engines []api.Engine
	mode    asset.Mode
}

// NewJS creates the script step.
func NewJS(targets []string, mode asset.Mode) (*JS, error) {
	engines, err := ParseTargets(targets)
	if err != nil {
		return nil, err
	}
	return &JS{engines: engines, mode: mode}, nil
}

// Transform implements Transformer.
func (j *JS) Transform(_ context.Context, in asset.Asset) (*Result, error) {
	opts := api.TransformOptions{
		Loader:            api.LoaderJS,
		Engines:           j.engines,
		Sourcefile:        in.Path,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LogLevel:          api.LogLevelSilent,
	}
	if j.mode.SourceMaps() {
		opts.Sourcemap = api.SourceMapInline
		opts.SourcesContent = api.SourcesContentInclude
	}

	res := api.Transform(string(in.Content), opts)
	if len(res.Errors) > 0 {
		return nil, kerrors.ErrTransformFailed(string(asset.Scripts), in.Path, esbuildError(res.Errors))
	}
	return &Result{Asset: asset.Asset{Path: in.Path, Content: res.Code}}, nil
}
