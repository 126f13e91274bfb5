package types

import (
	"io"
	"path/filepath"
)

// Prediction is a single ranked class returned by a classifier
type Prediction struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Point is a mark placed on an image, as percentages of width and height
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Source identifies the image to classify. Exactly one of Path or Reader is set.
type Source struct {
	Path   string
	Reader io.Reader
	// Name is used for logging when Reader is set (e.g. the upload filename)
	Name string
}

// Identifier returns a short name for the source, suitable for logs
func (s Source) Identifier() string {
	if s.Path != "" {
		return filepath.Base(s.Path)
	}
	if s.Name != "" {
		return s.Name
	}
	return "stream"
}

// OutputMode selects the form of the preprocessed model input
type OutputMode string

const (
	// OutputArray produces a flat numeric pixel vector
	OutputArray OutputMode = "array"
	// OutputBytes produces an encoded JPEG buffer
	OutputBytes OutputMode = "bytes"
)

// Input is the model-ready payload handed to an inference session.
// Values and Shape are set in array mode, Encoded in bytes mode.
type Input struct {
	Mode    OutputMode
	Values  []float32
	Shape   []int64
	Encoded []byte
	// Width, Height and Channels describe the image the payload was built from
	Width    int
	Height   int
	Channels int
}
