package transform

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/mlserver/pkg/types"
)

// ResizeSpec is the exact output size of ResizePreservingAspect
type ResizeSpec struct {
	Width  int
	Height int
}

// Validate checks that both targets are at least one pixel
func (s ResizeSpec) Validate() error {
	if s.Width < 1 || s.Height < 1 {
		return types.InputErrorf("resize target %dx%d must be at least 1x1", s.Width, s.Height)
	}
	return nil
}

// AspectCropBox returns the centered region of a w×h image that has the
// aspect ratio of targetW×targetH. The second result is false when the ratios
// already match and no crop is needed.
func AspectCropBox(w, h, targetW, targetH int) (image.Rectangle, bool) {
	full := image.Rect(0, 0, w, h)
	// integer cross-multiplication avoids float equality noise
	if targetW*h == targetH*w {
		return full, false
	}

	targetAspect := float64(targetW) / float64(targetH)
	originalAspect := float64(w) / float64(h)

	var x0, y0, x1, y1 float64
	if targetAspect > originalAspect {
		// too tall: take some off the top and bottom
		scale := float64(targetW) / float64(w)
		cropH := float64(targetH) / scale
		top := (float64(h) - cropH) / 2
		x0, y0, x1, y1 = 0, top, float64(w), top+cropH
	} else {
		// too wide: take some off the sides
		scale := float64(targetH) / float64(h)
		cropW := float64(targetW) / scale
		side := (float64(w) - cropW) / 2
		x0, y0, x1, y1 = side, 0, side+cropW, float64(h)
	}

	box := image.Rect(
		int(math.RoundToEven(x0)),
		int(math.RoundToEven(y0)),
		int(math.RoundToEven(x1)),
		int(math.RoundToEven(y1)),
	).Intersect(full)
	if box.Empty() {
		return full, false
	}
	return box, true
}

// ResizePreservingAspect center-crops img on its long axis to the target
// aspect ratio, then scales it to exactly spec.Width×spec.Height with a
// Lanczos filter. The result is never distorted or padded.
func ResizePreservingAspect(img Image, spec ResizeSpec) (Image, error) {
	if err := spec.Validate(); err != nil {
		return Image{}, err
	}

	pix := img.pix
	if box, crop := AspectCropBox(img.Width(), img.Height(), spec.Width, spec.Height); crop {
		pix = imaging.Crop(pix, box)
	}

	return img.with(imaging.Resize(pix, spec.Width, spec.Height, imaging.Lanczos)), nil
}
