package transform

import (
	"io/fs"

	"github.com/conneroisu/kiln/internal/asset"
	"github.com/conneroisu/kiln/internal/config"
)

// ForConfig builds the transform chain of every class. root is the project
// directory on disk and fsys the same tree as an fs.FS.
func ForConfig(cfg *config.Config, root string, fsys fs.FS) (map[asset.Class]Transformer, error) {
	mode := cfg.AssetMode()

	css, err := NewCSS(cfg.Styles.Targets, mode)
	if err != nil {
		return nil, err
	}
	js, err := NewJS(cfg.Styles.Targets, mode)
	if err != nil {
		return nil, err
	}

	markup := []Transformer{NewInclude(fsys), NewTemplate(fsys, cfg.Markup.Partials, mode)}
	if mode.Minify() {
		markup = append(markup, MinifyHTML())
	}

	return map[asset.Class]Transformer{
		asset.Markup: Chain(markup...),
		asset.Styles: Chain(
			NewSass(cfg.Styles.SassBinary, root),
			Rename(".scss", ".css"),
			Rename(".sass", ".css"),
			css,
		),
		asset.Scripts: Chain(NewInclude(fsys), js),
		asset.Images:  NewOptimize(cfg.Images.JPEGQuality),
		asset.Fonts:   Identity,
	}, nil
}
