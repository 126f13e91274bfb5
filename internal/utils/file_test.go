package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsImageFile(t *testing.T) {
	tests := map[string]bool{
		"mark.png":     true,
		"MARK.JPG":     true,
		"photo.jpeg":   true,
		"scan.tif":     true,
		"anim.webp":    true,
		"labels.txt":   false,
		"model.onnx":   false,
		"no_extension": false,
	}
	for name, expected := range tests {
		if got := IsImageFile(name); got != expected {
			t.Errorf("IsImageFile(%q) = %v, expected %v", name, got, expected)
		}
	}
}

func TestArtefactPath(t *testing.T) {
	tests := []struct {
		input, dir, tag, format string
		expected                string
	}{
		{"/data/mark.png", "", "SOLID_BG", "png", "/data/mark_SOLID_BG.png"},
		{"/data/mark.png", "/out", "CROP", "jpeg", "/out/mark_CROP.jpeg"},
		{"/data/mark.webp", "", "CROP_THEN_RESIZE", "", "/data/mark_CROP_THEN_RESIZE.webp"},
		{"/data/mark", "", "CROP", "", "/data/mark_CROP.jpeg"},
	}

	for _, tt := range tests {
		if got := ArtefactPath(tt.input, tt.dir, tt.tag, tt.format); got != tt.expected {
			t.Errorf("ArtefactPath(%q) = %s, expected %s", tt.input, got, tt.expected)
		}
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "nested"), 0755)
	for _, name := range []string{"b.png", "a.jpg", "nested/c.webp", "labels.txt"} {
		os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644)
	}

	files, err := ListImageFiles(dir)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}

	expected := []string{"a.jpg", "b.png", filepath.Join("nested", "c.webp")}
	if len(files) != len(expected) {
		t.Fatalf("Expected %d files, got %v", len(expected), files)
	}
	for i, name := range expected {
		if files[i] != filepath.Join(dir, name) {
			t.Errorf("Expected %s, got %s", filepath.Join(dir, name), files[i])
		}
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.png")
	os.WriteFile(file, []byte("x"), 0644)

	if !FileExists(file) || FileExists(dir) || FileExists(filepath.Join(dir, "missing")) {
		t.Error("FileExists returned wrong results")
	}
	if !DirExists(dir) || DirExists(file) {
		t.Error("DirExists returned wrong results")
	}

	nested := filepath.Join(dir, "a", "b")
	if err := EnsureDir(nested); err != nil || !DirExists(nested) {
		t.Errorf("EnsureDir failed: %v", err)
	}
}
