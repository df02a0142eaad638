package transform

import (
	"context"
	"path"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/svg"

	"github.com/conneroisu/kiln/internal/asset"
	kerrors "github.com/conneroisu/kiln/internal/errors"
)

func newMinifier() *minify.M {
	m := minify.New()
	m.Add("text/html", &html.Minifier{KeepDocumentTags: true, KeepEndTags: true, KeepQuotes: true})
	m.Add("image/svg+xml", &svg.Minifier{})
	return m
}

// Minify runs tdewolff/minify for the given media type.
type Minify struct {
	m         *minify.M
	mediaType string
	class     asset.Class
}

// MinifyHTML minifies markup.
func MinifyHTML() *Minify {
	return &Minify{m: newMinifier(), mediaType: "text/html", class: asset.Markup}
}

// MinifySVG minifies SVG documents.
func MinifySVG() *Minify {
	return &Minify{m: newMinifier(), mediaType: "image/svg+xml", class: asset.Images}
}

// Transform implements Transformer.
func (mf *Minify) Transform(_ context.Context, in asset.Asset) (*Result, error) {
	out, err := mf.m.Bytes(mf.mediaType, in.Content)
	if err != nil {
		return nil, kerrors.ErrTransformFailed(string(mf.class), in.Path, err)
	}
	return &Result{Asset: asset.Asset{Path: in.Path, Content: out}}, nil
}

// Rename changes the extension of the asset path.
func Rename(from, to string) Transformer {
	return Func(func(_ context.Context, in asset.Asset) (*Result, error) {
		if path.Ext(in.Path) == from {
			in.Path = in.Path[:len(in.Path)-len(from)] + to
		}
		return &Result{Asset: in}, nil
	})
}
