// Package preprocess turns a decoded image into the model-ready payload a
// descriptor asks for.
package preprocess

import (
	"fmt"
	"image/color"

	"github.com/menta2k/mlserver/pkg/model"
	"github.com/menta2k/mlserver/pkg/transform"
	"github.com/menta2k/mlserver/pkg/types"
)

// Options are the per-model preprocessing parameters
type Options struct {
	CropFactorW float64
	CropFactorH float64
	ResizeW     int
	ResizeH     int
	Greyscale   bool
	Output      types.OutputMode
	JPEGQuality int
	Background  color.Color
	Layout      string
	Mean        []float32
	Std         []float32
	// Shape overrides the default [1, N] tensor shape in array mode
	Shape []int64
}

// FromDescriptor resolves Options for d. The descriptor background wins over
// the application default bg.
func FromDescriptor(d *model.Descriptor, jpegQuality int, bg color.Color) (Options, error) {
	opts := Options{
		CropFactorW: d.Image.CropFactorW,
		CropFactorH: d.Image.CropFactorH,
		ResizeW:     d.Image.ResizeW,
		ResizeH:     d.Image.ResizeH,
		Greyscale:   d.Greyscale,
		Output:      d.Output,
		JPEGQuality: jpegQuality,
		Background:  bg,
		Layout:      d.Layout,
		Shape:       d.InputShape,
	}
	if d.Image.Background != "" {
		c, err := transform.ParseHexColor(d.Image.Background)
		if err != nil {
			return Options{}, fmt.Errorf("%w: model %q: %v", types.ErrConfiguration, d.Model.Name, err)
		}
		opts.Background = c
	}
	if d.Normalize != nil {
		opts.Mean = d.Normalize.Mean
		opts.Std = d.Normalize.Std
	}
	return opts, nil
}

// CropEnabled reports whether both crop factors are configured
func (o Options) CropEnabled() bool {
	return o.CropFactorW > 0 && o.CropFactorH > 0
}

// ResizeEnabled reports whether both target dimensions are configured
func (o Options) ResizeEnabled() bool {
	return o.ResizeW > 0 && o.ResizeH > 0
}

// Run flattens transparency, applies the color mode, crops around point
// (skipped when point is nil or no crop is configured), resizes, and encodes
// the result. The crop is floored at the resize dimensions so the resize
// never has to upscale a tiny crop.
func Run(img transform.Image, point *types.Point, opts Options) (types.Input, error) {
	img = transform.FlattenTransparency(img, opts.Background)
	if opts.Greyscale {
		img = transform.ToGreyscale(img)
	}

	if opts.CropEnabled() && point != nil {
		var err error
		img, err = transform.CropAround(img, transform.CropSpec{
			XPercent:  float64(point.X),
			YPercent:  float64(point.Y),
			ScaleW:    opts.CropFactorW,
			ScaleH:    opts.CropFactorH,
			MinWidth:  opts.ResizeW,
			MinHeight: opts.ResizeH,
		})
		if err != nil {
			return types.Input{}, err
		}
	}

	if opts.ResizeEnabled() {
		var err error
		img, err = transform.ResizePreservingAspect(img, transform.ResizeSpec{Width: opts.ResizeW, Height: opts.ResizeH})
		if err != nil {
			return types.Input{}, err
		}
	}

	switch opts.Output {
	case types.OutputBytes:
		return encodeBytes(img, opts)
	case types.OutputArray, "":
		return toArray(img, opts)
	default:
		return types.Input{}, fmt.Errorf("%w: unknown output mode %q", types.ErrConfiguration, opts.Output)
	}
}

func encodeBytes(img transform.Image, opts Options) (types.Input, error) {
	data, err := transform.EncodeJPEG(img.NRGBA(), opts.JPEGQuality)
	if err != nil {
		return types.Input{}, err
	}
	return types.Input{
		Mode:     types.OutputBytes,
		Encoded:  data,
		Width:    img.Width(),
		Height:   img.Height(),
		Channels: img.Mode.Channels(),
	}, nil
}
