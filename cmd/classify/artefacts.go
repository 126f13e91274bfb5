package main

import (
	"image"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/mlserver/internal/utils"
	"github.com/menta2k/mlserver/pkg/transform"
	"github.com/menta2k/mlserver/pkg/types"
)

// Artefact tags
const (
	tagSolidBackground = "SOLID_BG"
	tagCrop            = "CROP"
	tagCropThenResize  = "CROP_THEN_RESIZE"
	tagDebug           = "DEBUG"
)

// artefactOptions configure the transformer self-test
type artefactOptions struct {
	OutDir     string
	Mark       types.Point
	CropFactor float64
	Size       int
	Debug      bool
}

// writeArtefacts runs each transformer step on the image at in and saves the
// intermediate results next to it (or in OutDir). PNG inputs also get their
// flattened copy. It returns the written paths.
func writeArtefacts(in string, opts artefactOptions) ([]string, error) {
	img, err := transform.LoadImage(in)
	if err != nil {
		return nil, err
	}
	if opts.OutDir != "" {
		if err := utils.EnsureDir(opts.OutDir); err != nil {
			return nil, err
		}
	}

	flat := transform.FlattenTransparency(img, transform.DefaultBackground)
	spec := transform.CropSpec{
		XPercent:  float64(opts.Mark.X),
		YPercent:  float64(opts.Mark.Y),
		ScaleW:    opts.CropFactor,
		ScaleH:    opts.CropFactor,
		MinWidth:  1,
		MinHeight: 1,
	}
	cropped, err := transform.CropAround(flat, spec)
	if err != nil {
		return nil, err
	}
	resized, err := transform.ResizePreservingAspect(cropped, transform.ResizeSpec{Width: opts.Size, Height: opts.Size})
	if err != nil {
		return nil, err
	}

	type artefact struct {
		img    image.Image
		tag    string
		format string
	}
	artefacts := []artefact{
		{cropped.NRGBA(), tagCrop, "jpeg"},
		{resized.NRGBA(), tagCropThenResize, "jpeg"},
	}
	if img.Format == "png" {
		artefacts = append([]artefact{{flat.NRGBA(), tagSolidBackground, "png"}}, artefacts...)
	}
	if opts.Debug {
		box, err := transform.CropBox(flat.Width(), flat.Height(), spec)
		if err != nil {
			return nil, err
		}
		mark := image.Pt(
			int(math.Floor(float64(opts.Mark.X)/100*float64(flat.Width()))),
			int(math.Floor(float64(opts.Mark.Y)/100*float64(flat.Height()))),
		)
		artefacts = append(artefacts, artefact{transform.CreateDebugOverlay(flat.NRGBA(), box, mark), tagDebug, "png"})
	}

	paths := make([]string, len(artefacts))
	var g errgroup.Group
	for i, a := range artefacts {
		paths[i] = utils.ArtefactPath(in, opts.OutDir, a.tag, a.format)
		path := paths[i]
		g.Go(func() error {
			return transform.SaveImage(a.img, path, a.format, transform.DefaultJPEGQuality, false)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
