package transform

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// DefaultBackground is the color transparent pixels are composited onto
var DefaultBackground = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// HasTransparency reports whether any pixel of img is not fully opaque
func HasTransparency(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

// FlattenTransparency composites an image carrying transparency onto an
// opaque bg, and converts everything else to the opaque color mode.
func FlattenTransparency(img Image, bg color.Color) Image {
	if bg == nil {
		bg = DefaultBackground
	}

	if HasTransparency(img.pix) {
		canvas := imaging.New(img.Width(), img.Height(), opaque(bg))
		flat := imaging.Overlay(canvas, img.pix, image.Pt(0, 0), 1.0)
		return Image{pix: flat, Mode: ModeColor, Format: img.Format}
	}

	return Image{pix: imaging.Clone(img.pix), Mode: ModeColor, Format: img.Format}
}

// ToGreyscale converts img to single channel luminosity
func ToGreyscale(img Image) Image {
	return Image{pix: imaging.Grayscale(img.pix), Mode: ModeGrey, Format: img.Format}
}

// ParseHexColor parses "#rrggbb" or "#rrggbbaa" into an opaque-capable color
func ParseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: expected #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return color.NRGBA{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}

func opaque(c color.Color) color.NRGBA {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	n.A = 255
	return n
}
