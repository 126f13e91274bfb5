package preprocess

import (
	"fmt"

	"github.com/menta2k/mlserver/pkg/model"
	"github.com/menta2k/mlserver/pkg/transform"
	"github.com/menta2k/mlserver/pkg/types"
)

// toArray flattens the pixels into a float vector of width*height*channels.
// Greyscale keeps only luminosity; samples stay in 0..255 unless mean and
// std are configured.
func toArray(img transform.Image, opts Options) (types.Input, error) {
	pix := img.NRGBA()
	w, h := img.Width(), img.Height()
	channels := img.Mode.Channels()
	plane := w * h
	values := make([]float32, plane*channels)

	normalize := len(opts.Mean) == channels && len(opts.Std) == channels
	chw := opts.Layout == model.LayoutCHW

	for y := 0; y < h; y++ {
		row := pix.Pix[y*pix.Stride : y*pix.Stride+w*4]
		for x := 0; x < w; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < channels; c++ {
				v := float32(px[c])
				if normalize {
					v = (v/255 - opts.Mean[c]) / opts.Std[c]
				}
				i := y*w + x
				if chw {
					values[c*plane+i] = v
				} else {
					values[i*channels+c] = v
				}
			}
		}
	}

	shape := []int64{1, int64(len(values))}
	if len(opts.Shape) > 0 {
		n := int64(1)
		for _, d := range opts.Shape {
			n *= d
		}
		if n != int64(len(values)) {
			return types.Input{}, fmt.Errorf("%w: input shape %v holds %d values, image has %d",
				types.ErrConfiguration, opts.Shape, n, len(values))
		}
		shape = append([]int64(nil), opts.Shape...)
	}

	return types.Input{
		Mode:     types.OutputArray,
		Values:   values,
		Shape:    shape,
		Width:    w,
		Height:   h,
		Channels: channels,
	}, nil
}
