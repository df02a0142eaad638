// Package transform holds the per-class transform chains. Every step
// delegates to a library or an external compiler; this package only wires
// them together and normalises their failures.
package transform

import (
	"context"

	"github.com/conneroisu/kiln/internal/asset"
)

// Transformer turns one source asset into its output.
//
// The input path is the project-relative source path; the result keeps the
// same directory and may change the file name (".scss" -> ".css").
type Transformer interface {
	Transform(ctx context.Context, in asset.Asset) (*Result, error)
}

// Result is the outcome of a transform.
type Result struct {
	Asset asset.Asset
	// Extra holds side outputs such as external source maps.
	Extra []asset.Asset
	// Deps lists project-relative files read while transforming.
	Deps []string
}

// Func adapts a function to Transformer.
type Func func(ctx context.Context, in asset.Asset) (*Result, error)

// Transform calls f.
func (f Func) Transform(ctx context.Context, in asset.Asset) (*Result, error) {
	return f(ctx, in)
}

// Identity passes the asset through unchanged.
var Identity Transformer = Func(func(_ context.Context, in asset.Asset) (*Result, error) {
	return &Result{Asset: in}, nil
})

type chain []Transformer

// Chain runs steps in order, feeding each output to the next. Extras and
// deps accumulate; the first error stops the chain.
func Chain(steps ...Transformer) Transformer {
	return chain(steps)
}

func (c chain) Transform(ctx context.Context, in asset.Asset) (*Result, error) {
	out := &Result{Asset: in}
	for _, step := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := step.Transform(ctx, out.Asset)
		if err != nil {
			return nil, err
		}
		out.Asset = res.Asset
		out.Extra = append(out.Extra, res.Extra...)
		out.Deps = appendUnique(out.Deps, res.Deps...)
	}
	return out, nil
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, d := range dst {
			if d == item {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, item)
		}
	}
	return dst
}
