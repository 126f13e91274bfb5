package transform

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/mlserver/pkg/types"
)

// CropSpec frames a crop around a percentage point
type CropSpec struct {
	// XPercent and YPercent locate the mark, 0 to 100
	XPercent float64
	YPercent float64
	// ScaleW and ScaleH are the fractions of the original dimensions kept, in (0, 1]
	ScaleW float64
	ScaleH float64
	// MinWidth and MinHeight floor the box size; values below 1 are treated as 1
	MinWidth  int
	MinHeight int
}

// Validate checks the point and scale factors
func (s CropSpec) Validate() error {
	if s.XPercent < 0 || s.XPercent > 100 {
		return types.InputErrorf("x coordinate %v must be between 0 and 100", s.XPercent)
	}
	if s.YPercent < 0 || s.YPercent > 100 {
		return types.InputErrorf("y coordinate %v must be between 0 and 100", s.YPercent)
	}
	if !(s.ScaleW > 0 && s.ScaleW <= 1) {
		return types.InputErrorf("crop width factor %v must be in (0, 1]", s.ScaleW)
	}
	if !(s.ScaleH > 0 && s.ScaleH <= 1) {
		return types.InputErrorf("crop height factor %v must be in (0, 1]", s.ScaleH)
	}
	return nil
}

// CropBox computes the crop rectangle for a w×h image.
//
// The box is centered on the mark and, when it overflows an edge, shifted
// back inside the frame rather than truncated, so its size is preserved
// whenever the image is large enough. Both axes use the same rule: the
// overflow is measured before the far edge is capped. A box larger than the
// image (possible with a large floor) is finally intersected with the frame.
func CropBox(w, h int, spec CropSpec) (image.Rectangle, error) {
	if err := spec.Validate(); err != nil {
		return image.Rectangle{}, err
	}
	if w < 1 || h < 1 {
		return image.Rectangle{}, fmt.Errorf("%w: empty image %dx%d", types.ErrTransform, w, h)
	}

	minW, minH := max(spec.MinWidth, 1), max(spec.MinHeight, 1)

	xPx := int(math.Floor(spec.XPercent * float64(w) / 100))
	yPx := int(math.Floor(spec.YPercent * float64(h) / 100))

	targetW := max(int(math.Floor(spec.ScaleW*float64(w))), minW)
	targetH := max(int(math.Floor(spec.ScaleH*float64(h))), minH)

	x0, x1 := shiftSpan(xPx, targetW, w)
	y0, y1 := shiftSpan(yPx, targetH, h)

	return image.Rect(x0, y0, x1, y1), nil
}

// shiftSpan centers a span of size on center and shifts it into [0, limit]
func shiftSpan(center, size, limit int) (int, int) {
	start := center - size/2
	end := start + size

	if start < 0 {
		end += -start
		start = 0
	}
	if end > limit {
		start -= end - limit
		end = limit
	}
	if start < 0 {
		start = 0
	}
	return start, end
}

// CropAround crops img to the box described by spec
func CropAround(img Image, spec CropSpec) (Image, error) {
	box, err := CropBox(img.Width(), img.Height(), spec)
	if err != nil {
		return Image{}, err
	}
	return img.with(imaging.Crop(img.pix, box)), nil
}
