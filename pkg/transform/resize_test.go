package transform

import (
	"errors"
	"image"
	"testing"

	"github.com/menta2k/mlserver/pkg/types"
)

func TestAspectCropBox(t *testing.T) {
	tests := []struct {
		name         string
		w, h, tw, th int
		expected     image.Rectangle
		crop         bool
	}{
		{"landscape to square cuts the sides", 400, 300, 200, 200, image.Rect(50, 0, 350, 300), true},
		{"portrait to square cuts top and bottom", 300, 400, 200, 200, image.Rect(0, 50, 300, 350), true},
		{"same aspect is untouched", 400, 300, 200, 150, image.Rect(0, 0, 400, 300), false},
		{"same aspect when upscaling", 10, 10, 299, 299, image.Rect(0, 0, 10, 10), false},
		{"square to wide", 100, 100, 200, 100, image.Rect(0, 25, 100, 75), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box, crop := AspectCropBox(tt.w, tt.h, tt.tw, tt.th)
			if crop != tt.crop {
				t.Errorf("Expected crop=%v, got %v", tt.crop, crop)
			}
			if box != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, box)
			}
		})
	}
}

func TestResizePreservingAspect(t *testing.T) {
	sizes := [][4]int{
		{400, 300, 200, 200},
		{400, 300, 200, 150},
		{300, 400, 299, 299},
		{10, 10, 299, 299},
		{640, 480, 28, 28},
		{123, 457, 64, 32},
	}

	for _, sz := range sizes {
		img := createTestImage(sz[0], sz[1])
		resized, err := ResizePreservingAspect(img, ResizeSpec{Width: sz[2], Height: sz[3]})
		if err != nil {
			t.Fatalf("ResizePreservingAspect failed: %v", err)
		}
		if resized.Width() != sz[2] || resized.Height() != sz[3] {
			t.Errorf("Expected %dx%d, got %dx%d", sz[2], sz[3], resized.Width(), resized.Height())
		}
		if img.Width() != sz[0] || img.Height() != sz[1] {
			t.Errorf("Source image was modified to %dx%d", img.Width(), img.Height())
		}
	}
}

func TestResizeSpecValidate(t *testing.T) {
	img := createTestImage(10, 10)
	for _, spec := range []ResizeSpec{{0, 10}, {10, 0}, {-1, -1}} {
		if _, err := ResizePreservingAspect(img, spec); !errors.Is(err, types.ErrInput) {
			t.Errorf("Expected input error for %+v, got %v", spec, err)
		}
	}
}

func BenchmarkResizePreservingAspect(b *testing.B) {
	img := createTestImage(1920, 1080)
	spec := ResizeSpec{Width: 299, Height: 299}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ResizePreservingAspect(img, spec)
	}
}
