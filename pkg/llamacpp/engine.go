// Package llamacpp runs bytes-mode classifiers on a vision model served by a
// llama.cpp server through its OpenAI-compatible API.
package llamacpp

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/menta2k/mlserver/pkg/inference"
	"github.com/menta2k/mlserver/pkg/types"
	"github.com/menta2k/mlserver/pkg/vlm"
)

// Engine loads models served by one llama.cpp server
type Engine struct {
	client *Client
	retry  vlm.RetryConfig
}

// NewEngine creates an engine for the server at serverURL
func NewEngine(serverURL string, timeout time.Duration, rc vlm.RetryConfig) *Engine {
	return &Engine{client: NewClient(serverURL, timeout), retry: rc}
}

// Load checks that the server answers and returns a scoring session.
// An unreachable server is types.ErrModelUnavailable.
func (e *Engine) Load(ctx context.Context, opts inference.LoadOptions) (inference.Session, error) {
	start := time.Now()
	if err := e.client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: llama.cpp model %s: %v", types.ErrModelUnavailable, opts.Model, err)
	}

	log.WithFields(log.Fields{
		"context":  "llamacpp." + opts.Name,
		"model":    opts.Model,
		"duration": time.Since(start).Seconds(),
	}).Info("Loaded model")

	return vlm.NewSession(e.client, opts, e.retry), nil
}
