package transform

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

var (
	overlayBox    = color.NRGBA{255, 204, 0, 255}
	overlayMark   = color.NRGBA{255, 0, 0, 255}
	overlayCenter = color.NRGBA{0, 170, 255, 255}
)

// CreateDebugOverlay draws cropBox and a cross at mark onto a copy of img.
// The image center gets a smaller cross so an off-center crop is visible.
func CreateDebugOverlay(img image.Image, cropBox image.Rectangle, mark image.Point) *image.NRGBA {
	out := imaging.Clone(img)
	short := min(out.Bounds().Dx(), out.Bounds().Dy())
	stroke := max(2, short/250)

	if !cropBox.Empty() {
		fill(out, image.Rect(cropBox.Min.X, cropBox.Min.Y, cropBox.Max.X, cropBox.Min.Y+stroke), overlayBox)
		fill(out, image.Rect(cropBox.Min.X, cropBox.Max.Y-stroke, cropBox.Max.X, cropBox.Max.Y), overlayBox)
		fill(out, image.Rect(cropBox.Min.X, cropBox.Min.Y, cropBox.Min.X+stroke, cropBox.Max.Y), overlayBox)
		fill(out, image.Rect(cropBox.Max.X-stroke, cropBox.Min.Y, cropBox.Max.X, cropBox.Max.Y), overlayBox)
	}

	drawCross(out, mark, max(4, short/100), overlayMark)
	drawCross(out, image.Pt(out.Bounds().Dx()/2, out.Bounds().Dy()/2), 6, overlayCenter)
	return out
}

func drawCross(img *image.NRGBA, at image.Point, arm int, c color.NRGBA) {
	fill(img, image.Rect(at.X-arm, at.Y, at.X+arm, at.Y+1), c)
	fill(img, image.Rect(at.X, at.Y-arm, at.X+1, at.Y+arm), c)
}

// fill paints r clipped to the image bounds
func fill(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}
