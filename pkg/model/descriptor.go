// Package model reads the per-model descriptor and label files that
// configure a classifier plugin.
//
// Every model lives in its own directory under the models root:
//
//	models/
//	  builtinColorClassifier/
//	    model.json        descriptor, required
//	    model.local.json  overlay merged on top, optional
//	    model.onnx        graph file named by inputFiles.model
//	    labels.txt        one label per class index, named by inputFiles.labels
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/menta2k/mlserver/pkg/types"
)

// Descriptor file names, in merge order
const (
	DescriptorFile      = "model.json"
	LocalDescriptorFile = "model.local.json"
)

// DefaultThreshold is the exclusive minimum score for a class to be reported
const DefaultThreshold = 0.05

// Engine names
const (
	EngineONNX     = "onnx"
	EngineOllama   = "ollama"
	EngineLlamaCpp = "llamacpp"
)

// Pixel layouts for array mode
const (
	LayoutHWC = "hwc"
	LayoutCHW = "chw"
)

// Descriptor is the resolved configuration of one model.
// It is read once at startup and never modified afterwards.
type Descriptor struct {
	Model      Info             `json:"model"`
	InputFiles InputFiles       `json:"inputFiles"`
	Tensors    Tensors          `json:"tensors"`
	Image      ImageParams      `json:"image"`
	Output     types.OutputMode `json:"output"`
	Greyscale  bool             `json:"greyscale"`
	// Threshold defaults to DefaultThreshold when absent
	Threshold *float64 `json:"threshold,omitempty"`
	Engine    string   `json:"engine"`
	// InputShape overrides the default [1, N] array tensor shape
	InputShape []int64    `json:"inputShape,omitempty"`
	Layout     string     `json:"layout,omitempty"`
	Normalize  *Normalize `json:"normalize,omitempty"`
	// Prompt replaces the default scoring prompt of vision-language engines
	Prompt string `json:"prompt,omitempty"`

	// Dir is the model directory the descriptor was read from
	Dir string `json:"-"`
}

// Info names and describes the model
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// InputFiles are paths relative to the model directory. For remote engines
// Model is the model name on the remote server instead of a file.
type InputFiles struct {
	Model  string `json:"model"`
	Labels string `json:"labels"`
}

// Tensors holds the input and output tensor keys
type Tensors struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// ImageParams configures the crop and resize steps. Zero values disable a step.
type ImageParams struct {
	CropFactorW float64 `json:"cropFactorW,omitempty"`
	CropFactorH float64 `json:"cropFactorH,omitempty"`
	ResizeW     int     `json:"resizeW,omitempty"`
	ResizeH     int     `json:"resizeH,omitempty"`
	// Background overrides the application flatten color, "#rrggbb"
	Background string `json:"background,omitempty"`
}

// Normalize maps 0..255 samples to (v/255 - Mean[c]) / Std[c]
type Normalize struct {
	Mean []float32 `json:"mean"`
	Std  []float32 `json:"std"`
}

// LoadDescriptor reads models/<name>/model.json and the optional local overlay.
//
// A missing directory or descriptor is reported as types.ErrModelUnavailable;
// a descriptor that cannot be parsed or fails validation as types.ErrConfiguration.
func LoadDescriptor(modelsDir, name string) (*Descriptor, error) {
	dir := filepath.Join(modelsDir, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: cannot find directory %q (%s)", types.ErrModelUnavailable, name, dir)
	}

	d := &Descriptor{}
	base := filepath.Join(dir, DescriptorFile)
	data, err := os.ReadFile(base)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %v", types.ErrModelUnavailable, base, err)
	}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", types.ErrConfiguration, base, err)
	}

	local := filepath.Join(dir, LocalDescriptorFile)
	data, err = os.ReadFile(local)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, d); err != nil {
			return nil, fmt.Errorf("%w: failed to parse %s: %v", types.ErrConfiguration, local, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: cannot read %s: %v", types.ErrConfiguration, local, err)
	}

	d.Dir = dir
	d.applyDefaults()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Descriptor) applyDefaults() {
	if d.Engine == "" {
		d.Engine = EngineONNX
	}
	if d.Output == "" {
		d.Output = types.OutputArray
	}
	if d.Layout == "" {
		d.Layout = LayoutHWC
	}
}

// Validate checks the descriptor for values no model can run with
func (d *Descriptor) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: model %q: %s", types.ErrConfiguration, d.Model.Name, fmt.Sprintf(format, args...))
	}

	if d.Model.Name == "" {
		return fmt.Errorf("%w: model.name is required", types.ErrConfiguration)
	}
	if d.InputFiles.Model == "" {
		return bad("inputFiles.model is required")
	}
	if d.InputFiles.Labels == "" {
		return bad("inputFiles.labels is required")
	}
	if d.Tensors.Input == "" || d.Tensors.Output == "" {
		return bad("tensors.input and tensors.output are required")
	}

	img := d.Image
	if img.CropFactorW < 0 || img.CropFactorW > 1 || img.CropFactorH < 0 || img.CropFactorH > 1 {
		return bad("crop factors must be in (0, 1]")
	}
	if img.ResizeW < 0 || img.ResizeH < 0 {
		return bad("resize dimensions must be positive")
	}

	if t := d.ScoreThreshold(); t < 0 || t >= 1 {
		return bad("threshold %v must be in [0, 1)", t)
	}

	switch d.Output {
	case types.OutputArray, types.OutputBytes:
	default:
		return bad("output must be %q or %q, got %q", types.OutputArray, types.OutputBytes, d.Output)
	}

	switch d.Engine {
	case EngineONNX:
		if d.Output != types.OutputArray {
			return bad("engine %s requires array output", d.Engine)
		}
	case EngineOllama, EngineLlamaCpp:
		if d.Output != types.OutputBytes {
			return bad("engine %s requires bytes output", d.Engine)
		}
	default:
		return bad("unknown engine %q", d.Engine)
	}

	switch d.Layout {
	case LayoutHWC, LayoutCHW:
	default:
		return bad("layout must be %q or %q", LayoutHWC, LayoutCHW)
	}

	if n := d.Normalize; n != nil {
		channels := 3
		if d.Greyscale {
			channels = 1
		}
		if len(n.Mean) != channels || len(n.Std) != channels {
			return bad("normalize needs %d mean and std values", channels)
		}
		for _, s := range n.Std {
			if s == 0 {
				return bad("normalize std must be non-zero")
			}
		}
	}

	for _, dim := range d.InputShape {
		if dim < 1 {
			return bad("inputShape dimensions must be positive")
		}
	}
	return nil
}

// ScoreThreshold returns the configured threshold or DefaultThreshold
func (d *Descriptor) ScoreThreshold() float32 {
	if d.Threshold == nil {
		return DefaultThreshold
	}
	return float32(*d.Threshold)
}

// CropEnabled reports whether both crop factors are configured
func (d *Descriptor) CropEnabled() bool {
	return d.Image.CropFactorW > 0 && d.Image.CropFactorH > 0
}

// ResizeEnabled reports whether both resize dimensions are configured
func (d *Descriptor) ResizeEnabled() bool {
	return d.Image.ResizeW > 0 && d.Image.ResizeH > 0
}

// Remote reports whether the engine runs the model on another server
func (d *Descriptor) Remote() bool {
	return d.Engine == EngineOllama || d.Engine == EngineLlamaCpp
}

// ModelPath returns the readable path to the model file.
// Remote engines have no local model file and get an empty path.
func (d *Descriptor) ModelPath() (string, error) {
	if d.Remote() {
		return "", nil
	}
	return d.readablePath(d.InputFiles.Model, "model")
}

// LabelsPath returns the readable path to the labels file
func (d *Descriptor) LabelsPath() (string, error) {
	return d.readablePath(d.InputFiles.Labels, "labels")
}

func (d *Descriptor) readablePath(name, kind string) (string, error) {
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(d.Dir, name)
	}
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("%w: unable to read path to %s file %s", types.ErrModelUnavailable, kind, p)
	}
	f.Close()
	return p, nil
}
