package transform

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"github.com/conneroisu/kiln/internal/asset"
	kerrors "github.com/conneroisu/kiln/internal/errors"
)

// Optimize re-encodes raster images and minifies SVG. The smaller of the
// original and the optimised bytes is kept, so an image never grows.
// Unknown formats pass through.
type Optimize struct {
	quality int
	svg     *Minify
}

// NewOptimize creates the image step. quality applies to JPEG.
func NewOptimize(quality int) *Optimize {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &Optimize{quality: quality, svg: MinifySVG()}
}

// Transform implements Transformer.
func (o *Optimize) Transform(ctx context.Context, in asset.Asset) (*Result, error) {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(path.Ext(in.Path)) {
	case ".png":
		out, err = o.png(in.Content)
	case ".jpg", ".jpeg":
		out, err = o.jpeg(in.Content)
	case ".svg":
		var res *Result
		res, err = o.svg.Transform(ctx, in)
		if err == nil {
			out = res.Asset.Content
		}
	default:
		return &Result{Asset: in}, nil
	}
	if err != nil {
		return nil, kerrors.ErrTransformFailed(string(asset.Images), in.Path, err)
	}

	if len(out) == 0 || len(out) >= len(in.Content) {
		return &Result{Asset: in}, nil
	}
	return &Result{Asset: asset.Asset{Path: in.Path, Content: out}}, nil
}

func (o *Optimize) png(content []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Optimize) jpeg(content []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
