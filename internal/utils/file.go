package utils

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/menta2k/mlserver/pkg/transform"
)

// EnsureDir creates dir and its parents when missing
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// GetFileExtension returns the lower-cased extension of name without the dot
func GetFileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// IsImageFile reports whether name carries an extension the transformer decodes
func IsImageFile(name string) bool {
	switch ext := GetFileExtension(name); ext {
	case "":
		return false
	case "jpg":
		return true
	case "tif":
		return transform.IsFormatSupported("tiff")
	default:
		return transform.IsFormatSupported(ext)
	}
}

// ArtefactPath names the artefact tagged tag for input as
// "<outDir>/<base>_<tag>.<format>". outDir defaults to the input directory
// and format to the input extension, or jpeg when it has none.
func ArtefactPath(input, outDir, tag, format string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if outDir == "" {
		outDir = filepath.Dir(input)
	}
	if format == "" {
		if format = GetFileExtension(input); format == "" {
			format = "jpeg"
		}
	}
	return filepath.Join(outDir, base+"_"+tag+"."+format)
}

// ListImageFiles walks dir and returns the image files below it in lexical order
func ListImageFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// FileExists reports whether name is an existing regular file
func FileExists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

// DirExists reports whether name is an existing directory
func DirExists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.IsDir()
}
