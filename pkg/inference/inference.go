// Package inference defines the contract between classifier plugins and the
// runtimes that execute their models.
package inference

import (
	"context"

	"github.com/menta2k/mlserver/pkg/types"
)

// LoadOptions identifies the model an engine should load
type LoadOptions struct {
	// Name is the descriptor's model name, used for logging
	Name string
	// Path is the local model file; empty for remote engines
	Path string
	// Model is the remote model name for engines that run on another server
	Model string
	// InputKey and OutputKey are the descriptor's tensor keys
	InputKey  string
	OutputKey string
	// Labels is the ordered label list the output vector must align with
	Labels []string
	// Prompt optionally replaces the engine's default prompt
	Prompt string
}

// Engine loads models into sessions
type Engine interface {
	Load(ctx context.Context, opts LoadOptions) (Session, error)
}

// Session is a loaded model. Infer must be safe for concurrent use and must
// not keep mutable execution state between calls.
type Session interface {
	// Infer returns the dense per-class score vector for input
	Infer(ctx context.Context, inputKey string, input types.Input, outputKey string) ([]float32, error)
	Close() error
}

// OutputSizer is implemented by sessions that know their output vector length
// at load time, so it can be checked against the label list before serving.
type OutputSizer interface {
	OutputSize() (int, bool)
}

// EngineFunc adapts a function to the Engine interface
type EngineFunc func(ctx context.Context, opts LoadOptions) (Session, error)

// Load calls f
func (f EngineFunc) Load(ctx context.Context, opts LoadOptions) (Session, error) {
	return f(ctx, opts)
}
