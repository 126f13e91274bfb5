// Package ollama runs bytes-mode classifiers on a vision model served by Ollama.
package ollama

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/menta2k/mlserver/pkg/inference"
	"github.com/menta2k/mlserver/pkg/types"
	"github.com/menta2k/mlserver/pkg/vlm"
)

// Engine loads Ollama-served models
type Engine struct {
	client *Client
	retry  vlm.RetryConfig
}

// NewEngine creates an engine for the server at ollamaURL
func NewEngine(ollamaURL string, timeout time.Duration, rc vlm.RetryConfig) (*Engine, error) {
	client, err := NewClient(ollamaURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", types.ErrConfiguration, err)
	}
	return &Engine{client: client, retry: rc}, nil
}

// Load checks that the server has opts.Model and returns a scoring session.
// An unknown model or an unreachable server is types.ErrModelUnavailable.
func (e *Engine) Load(ctx context.Context, opts inference.LoadOptions) (inference.Session, error) {
	start := time.Now()
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: no ollama model name for %s", types.ErrConfiguration, opts.Name)
	}
	if err := e.client.HasModel(ctx, opts.Model); err != nil {
		return nil, fmt.Errorf("%w: ollama model %s: %v", types.ErrModelUnavailable, opts.Model, err)
	}

	log.WithFields(log.Fields{
		"context":  "ollama." + opts.Name,
		"model":    opts.Model,
		"duration": time.Since(start).Seconds(),
	}).Info("Loaded model")

	return vlm.NewSession(e.client, opts, e.retry), nil
}
