package transform

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"path"
	"strings"

	"github.com/conneroisu/kiln/internal/asset"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/scanner"
)

// PageData is passed to every markup page.
type PageData struct {
	Mode       asset.Mode
	Production bool
	// Path is the output path of the page relative to the output root.
	Path string
}

// Template renders a page with html/template. Every file matching the
// partials glob is parsed alongside it and reported as a dependency, so a
// partial edit re-renders all pages.
type Template struct {
	fsys     fs.FS
	resolver *scanner.Resolver
	partials string
	mode     asset.Mode
}

// NewTemplate creates the template step. partials may be empty.
func NewTemplate(fsys fs.FS, partials string, mode asset.Mode) *Template {
	return &Template{fsys: fsys, resolver: scanner.NewResolver(fsys), partials: partials, mode: mode}
}

// Transform implements Transformer.
func (t *Template) Transform(ctx context.Context, in asset.Asset) (*Result, error) {
	var partials []string
	if t.partials != "" {
		var err error
		partials, err = t.resolver.Resolve(t.partials)
		if err != nil {
			return nil, err
		}
	}

	tmpl := template.New(path.Base(in.Path))
	if _, err := tmpl.Parse(string(in.Content)); err != nil {
		return nil, kerrors.ErrTransformFailed(string(asset.Markup), in.Path, err)
	}

	var deps []string
	for _, p := range partials {
		if p == in.Path {
			continue
		}
		content, err := fs.ReadFile(t.fsys, p)
		if err != nil {
			return nil, kerrors.NewIOError(kerrors.ErrCodeReadFailed, "cannot read partial "+p, err)
		}
		if _, err := tmpl.New(partialName(t.partials, p)).Parse(string(content)); err != nil {
			return nil, kerrors.ErrTransformFailed(string(asset.Markup), p, err)
		}
		deps = append(deps, p)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := htmlName(in.Path)
	var buf bytes.Buffer
	data := PageData{Mode: t.mode, Production: t.mode == asset.Production, Path: path.Base(out)}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, kerrors.ErrTransformFailed(string(asset.Markup), in.Path, err)
	}

	return &Result{Asset: asset.Asset{Path: out, Content: buf.Bytes()}, Deps: deps}, nil
}

// partialName names a partial by its path below the partials base without
// extension: "src/templates/layout/header.gohtml" -> "layout/header".
func partialName(pattern, p string) string {
	rel := scanner.Rel(pattern, p)
	return strings.TrimSuffix(rel, path.Ext(rel))
}

func htmlName(p string) string {
	switch path.Ext(p) {
	case ".gohtml", ".tmpl":
		return strings.TrimSuffix(p, path.Ext(p)) + ".html"
	default:
		return p
	}
}
