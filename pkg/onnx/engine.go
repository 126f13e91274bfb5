// Package onnx runs array-mode classifiers with ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/menta2k/mlserver/pkg/inference"
	"github.com/menta2k/mlserver/pkg/types"
)

// Engine owns the process-wide ONNX Runtime environment
type Engine struct {
	libraryPath string
	threads     int

	mu          sync.Mutex
	initialized bool
}

// NewEngine creates an engine. libraryPath points at libonnxruntime; empty
// uses the runtime's default lookup. threads limits intra-op threads per
// session, 0 keeps the runtime default.
func NewEngine(libraryPath string, threads int) *Engine {
	return &Engine{libraryPath: libraryPath, threads: threads}
}

func (e *Engine) init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}
	if e.libraryPath != "" {
		ort.SetSharedLibraryPath(e.libraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("%w: init onnx runtime: %v", types.ErrConfiguration, err)
		}
	}
	e.initialized = true
	return nil
}

// Load opens opts.Path and checks that it has the configured input and output tensors
func (e *Engine) Load(ctx context.Context, opts inference.LoadOptions) (inference.Session, error) {
	start := time.Now()
	if err := e.init(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: io info for %s: %v", types.ErrModelUnavailable, opts.Path, err)
	}
	in, ok := findInfo(inputs, opts.InputKey)
	if !ok {
		return nil, fmt.Errorf("%w: model %s has no input tensor %q", types.ErrConfiguration, opts.Name, opts.InputKey)
	}
	out, ok := findInfo(outputs, opts.OutputKey)
	if !ok {
		return nil, fmt.Errorf("%w: model %s has no output tensor %q", types.ErrConfiguration, opts.Name, opts.OutputKey)
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	defer sessionOpts.Destroy()
	if err := setThreads(sessionOpts, e.threads); err != nil {
		return nil, err
	}

	sess, err := ort.NewDynamicAdvancedSession(opts.Path, []string{in.Name}, []string{out.Name}, sessionOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: session for %s: %v", types.ErrModelUnavailable, opts.Path, err)
	}

	log.WithFields(log.Fields{
		"context":  "onnx." + opts.Name,
		"input":    in.String(),
		"output":   out.String(),
		"duration": time.Since(start).Seconds(),
	}).Info("Loaded model")

	return &Session{
		name:        opts.Name,
		sess:        sess,
		inputDims:   []int64(in.Dimensions),
		outputCount: classCount([]int64(out.Dimensions)),
	}, nil
}

// Close releases the ONNX Runtime environment. Sessions must be closed first.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil
	}
	e.initialized = false
	return ort.DestroyEnvironment()
}

func findInfo(infos []ort.InputOutputInfo, name string) (ort.InputOutputInfo, bool) {
	for _, info := range infos {
		if info.Name == name {
			return info, true
		}
	}
	return ort.InputOutputInfo{}, false
}

// Session runs one model. Each Infer call creates and destroys its own
// tensors, so a Session can be shared between goroutines.
type Session struct {
	name        string
	sess        *ort.DynamicAdvancedSession
	inputDims   []int64
	outputCount int
}

// Infer runs the model on an array-mode input
func (s *Session) Infer(ctx context.Context, inputKey string, input types.Input, outputKey string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if input.Mode != types.OutputArray || len(input.Values) == 0 {
		return nil, fmt.Errorf("%w: onnx model %s needs array input", types.ErrConfiguration, s.name)
	}

	shape := inputShape(s.inputDims, input.Shape, len(input.Values))
	tensor, err := ort.NewTensor(ort.NewShape(shape...), input.Values)
	if err != nil {
		return nil, fmt.Errorf("tensor: %w", err)
	}
	defer tensor.Destroy()

	outputs := []ort.Value{nil}
	if err := s.sess.Run([]ort.Value{tensor}, outputs); err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	t, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	return append([]float32(nil), t.GetData()...), nil
}

// OutputSize reports the class count when the output shape is fixed
func (s *Session) OutputSize() (int, bool) {
	return s.outputCount, s.outputCount > 0
}

// Close destroys the underlying session
func (s *Session) Close() error {
	if s.sess == nil {
		return nil
	}
	err := s.sess.Destroy()
	s.sess = nil
	return err
}
