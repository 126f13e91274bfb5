package transform

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/mlserver/pkg/types"
)

// SupportedFormats lists the decodable format tags
var SupportedFormats = []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"}

// Decoding limits applied when a Limits field is zero. DefaultMaxPixels is
// the decompression bomb threshold PIL uses.
const (
	DefaultMaxBytes  int64 = 10 << 20
	DefaultMaxPixels int64 = 89478485
)

// Limits bound how much image data is read and how large a raster may be
// decoded. Zero fields take the defaults.
type Limits struct {
	MaxBytes  int64
	MaxPixels int64
}

// DefaultLimits are used by the package level loaders
var DefaultLimits = Limits{MaxBytes: DefaultMaxBytes, MaxPixels: DefaultMaxPixels}

func (l Limits) resolved() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	if l.MaxPixels <= 0 {
		l.MaxPixels = DefaultMaxPixels
	}
	return l
}

// LoadImage loads an image from a file path
func LoadImage(path string) (Image, error) {
	return DefaultLimits.LoadImage(path)
}

// LoadImageFromReader loads an image from an io.Reader
func LoadImageFromReader(r io.Reader) (Image, error) {
	return DefaultLimits.LoadImageFromReader(r)
}

// LoadSource loads the image a Source points at
func LoadSource(src types.Source) (Image, error) {
	return DefaultLimits.LoadSource(src)
}

// LoadImage loads the regular file at path
func (l Limits) LoadImage(path string) (Image, error) {
	data, err := l.ReadFile(path)
	if err != nil {
		return Image{}, err
	}
	return l.decode(data)
}

// LoadImageFromReader reads at most MaxBytes from r and decodes them
func (l Limits) LoadImageFromReader(r io.Reader) (Image, error) {
	data, err := l.Read(r)
	if err != nil {
		return Image{}, err
	}
	return l.decode(data)
}

// LoadSource loads the image a Source points at
func (l Limits) LoadSource(src types.Source) (Image, error) {
	data, err := l.ReadSource(src)
	if err != nil {
		return Image{}, err
	}
	return l.decode(data)
}

// ReadSource returns the encoded bytes of the image a Source points at.
// Exactly one of path and reader must be set.
func (l Limits) ReadSource(src types.Source) ([]byte, error) {
	switch {
	case src.Path != "" && src.Reader != nil:
		return nil, types.InputErrorf("expected either an image path or an image file, not both")
	case src.Path != "":
		return l.ReadFile(src.Path)
	case src.Reader != nil:
		return l.Read(src.Reader)
	default:
		return nil, types.InputErrorf("expected a value for either the image path or the image file")
	}
}

// ReadFile reads the regular file at path, refusing files over MaxBytes
func (l Limits) ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, types.InputErrorf("unable to read path to image: %s", path)
		}
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat image file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, types.InputErrorf("image path is not a regular file: %s", path)
	}
	if limit := l.resolved().MaxBytes; info.Size() > limit {
		return nil, fmt.Errorf("%w: image file is %d bytes, limit is %d", types.ErrTransform, info.Size(), limit)
	}
	return l.Read(f)
}

// Read reads r to the end, failing once more than MaxBytes have been read
func (l Limits) Read(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, types.InputErrorf("no image data")
	}
	limit := l.resolved().MaxBytes
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read image data: %v", types.ErrTransform, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: image data exceeds %d bytes", types.ErrTransform, limit)
	}
	return data, nil
}

// decode checks the declared dimensions before allocating the raster, then
// decodes with the registered decoders and falls back to libwebp.
func (l Limits) decode(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty image data", types.ErrTransform)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		var werr error
		if cfg, werr = webp.DecodeConfig(bytes.NewReader(data)); werr != nil {
			return Image{}, fmt.Errorf("%w: %v", types.ErrTransform, err)
		}
	}
	if err := l.checkPixels(cfg.Width, cfg.Height); err != nil {
		return Image{}, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return fromDecoded(img, format)
	}

	// libwebp handles variants x/image/webp does not
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return fromDecoded(wimg, "webp")
	}

	return Image{}, fmt.Errorf("%w: %v", types.ErrTransform, err)
}

func (l Limits) checkPixels(w, h int) error {
	if w < 1 || h < 1 {
		return fmt.Errorf("%w: empty image %dx%d", types.ErrTransform, w, h)
	}
	if limit := l.resolved().MaxPixels; int64(w)*int64(h) > limit {
		return fmt.Errorf("%w: image is %dx%d, more than %d pixels", types.ErrTransform, w, h, limit)
	}
	return nil
}

func fromDecoded(img image.Image, format string) (Image, error) {
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return Image{}, fmt.Errorf("%w: empty image %dx%d", types.ErrTransform, b.Dx(), b.Dy())
	}
	if !IsFormatSupported(format) {
		return Image{}, fmt.Errorf("%w: unsupported image format: %s", types.ErrTransform, format)
	}
	return FromImage(img, format), nil
}

// IsFormatSupported reports whether format is one of SupportedFormats
func IsFormatSupported(format string) bool {
	for _, supported := range SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
