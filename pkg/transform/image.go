// Package transform prepares decoded images for fixed-size model inputs.
//
// Every operation returns a new Image; the receiver's pixels are never
// modified, so a transformed Image can be handed to the next step while the
// original is still in use elsewhere.
package transform

import (
	"image"

	"github.com/disintegration/imaging"
)

// Mode is the color mode of an Image
type Mode int

const (
	// ModeColor is an opaque three channel image
	ModeColor Mode = iota
	// ModeGrey is a single channel luminosity image
	ModeGrey
)

func (m Mode) String() string {
	if m == ModeGrey {
		return "grey"
	}
	return "color"
}

// Channels returns the number of model input channels for the mode
func (m Mode) Channels() int {
	if m == ModeGrey {
		return 1
	}
	return 3
}

// Image is a pixel buffer with its color mode and source format tag.
// Pixels are always stored as NRGBA with the origin at (0, 0); in ModeGrey
// the R, G and B samples are equal.
type Image struct {
	pix    *image.NRGBA
	Mode   Mode
	Format string
}

// FromImage copies img into a new Image
func FromImage(img image.Image, format string) Image {
	return Image{
		pix:    imaging.Clone(img),
		Mode:   ModeColor,
		Format: format,
	}
}

// Width returns the image width in pixels
func (i Image) Width() int {
	if i.pix == nil {
		return 0
	}
	return i.pix.Bounds().Dx()
}

// Height returns the image height in pixels
func (i Image) Height() int {
	if i.pix == nil {
		return 0
	}
	return i.pix.Bounds().Dy()
}

// NRGBA exposes the underlying pixels. Callers must treat them as read-only.
func (i Image) NRGBA() *image.NRGBA {
	return i.pix
}

// Info returns basic information about the image
func (i Image) Info() ImageInfo {
	w, h := i.Width(), i.Height()
	info := ImageInfo{
		Width:  w,
		Height: h,
		Area:   w * h,
		Mode:   i.Mode.String(),
		Format: i.Format,
	}
	if h > 0 {
		info.AspectRatio = float64(w) / float64(h)
	}
	return info
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
	Mode        string  `json:"mode"`
	Format      string  `json:"format"`
}

func (i Image) with(pix *image.NRGBA) Image {
	return Image{pix: pix, Mode: i.Mode, Format: i.Format}
}
