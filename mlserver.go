// Package mlserver serves image classification plugins.
//
// Each plugin binds a model directory to an inference engine. A request
// carries an image and an optional mark point; the plugin crops around the
// mark, resizes without distortion, runs the model and returns the labels
// scoring above the model's threshold, best first.
//
// Basic usage:
//
//	cfg, err := config.Load("./config")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	srv, err := mlserver.Open(ctx, cfg)
//	if err != nil {
//		log.Fatal(err) // a required plugin could not be loaded
//	}
//	defer srv.Close()
//
//	predictions, err := srv.Dispatcher().Classify(ctx, "builtinColors", registry.Payload{
//		Source: types.Source{Path: "mark.png"},
//	})
//
// The package consists of four main parts:
//
// 1. Transform (pkg/transform): crop around a point, aspect preserving resize, transparency flattening
// 2. Preprocess (pkg/preprocess): turns a descriptor into model-ready arrays or JPEG bytes
// 3. Plugin (pkg/plugin): preprocess, infer and rank for one model
// 4. Registry (pkg/registry): the named plugin set and request dispatch
//
// Models run on ONNX Runtime (pkg/onnx) or on vision-language models served
// by Ollama (pkg/ollama) or llama.cpp (pkg/llamacpp).
package mlserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/menta2k/mlserver/internal/api"
	"github.com/menta2k/mlserver/internal/cache"
	"github.com/menta2k/mlserver/internal/config"
	"github.com/menta2k/mlserver/pkg/inference"
	"github.com/menta2k/mlserver/pkg/llamacpp"
	"github.com/menta2k/mlserver/pkg/model"
	"github.com/menta2k/mlserver/pkg/ollama"
	"github.com/menta2k/mlserver/pkg/onnx"
	"github.com/menta2k/mlserver/pkg/plugin"
	"github.com/menta2k/mlserver/pkg/registry"
	"github.com/menta2k/mlserver/pkg/vlm"
)

// Version of the server
const Version = "1.0.0"

// Server is the loaded plugin set with its engines and cache
type Server struct {
	config     *config.Config
	registry   *registry.Registry
	dispatcher *registry.Dispatcher
	cache      *cache.Redis
	closers    []func() error
}

// Open validates cfg, creates the configured engines and builds the registry.
// A required plugin that cannot be loaded fails with types.ErrConfiguration.
func Open(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engines, closers, err := NewEngines(cfg)
	if err != nil {
		return nil, err
	}
	s, err := open(ctx, cfg, engines)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	s.closers = append(s.closers, closers...)
	return s, nil
}

// OpenWithEngines is Open with caller supplied engines, keyed by descriptor engine name
func OpenWithEngines(ctx context.Context, cfg *config.Config, engines map[string]inference.Engine) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return open(ctx, cfg, engines)
}

func open(ctx context.Context, cfg *config.Config, engines map[string]inference.Engine) (*Server, error) {
	bg, err := cfg.Background()
	if err != nil {
		return nil, err
	}

	reg, err := registry.Build(ctx, cfg.Plugins, cfg.Models.Dir, engines, plugin.Options{
		JPEGQuality: cfg.Predictions.JPEGQuality,
		Background:  bg,
		Limits:      cfg.ImageLimits(),
	})
	if err != nil {
		return nil, err
	}

	s := &Server{config: cfg, registry: reg}
	s.closers = append(s.closers, reg.Close)

	if cfg.Cache.RedisAddr != "" {
		c, err := cache.Open(ctx, cache.Options{
			Address:  cfg.Cache.RedisAddr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL.Std(),
		})
		if err != nil {
			log.WithField("context", "mlserver").WithError(err).Warn("Prediction cache disabled")
		} else {
			s.cache = c
			s.closers = append(s.closers, c.Close)
		}
	}

	var predictionCache registry.Cache
	if s.cache != nil {
		predictionCache = s.cache
	}
	s.dispatcher = registry.NewDispatcher(reg, cfg.Predictions.MaxResults, predictionCache, cfg.ImageLimits())
	return s, nil
}

// NewEngines creates the engines enabled in cfg. ONNX is always available;
// the remote engines are created only when their URL is set. The returned
// closers release engine resources.
func NewEngines(cfg *config.Config) (map[string]inference.Engine, []func() error, error) {
	rc := vlm.RetryConfig{MaxRetries: cfg.Engines.RemoteRetries, Backoff: vlm.DefaultRetry.Backoff}
	timeout := cfg.Engines.RemoteTimeout.Std()

	ort := onnx.NewEngine(cfg.Engines.ONNX.LibraryPath, cfg.Engines.ONNX.Threads)
	engines := map[string]inference.Engine{model.EngineONNX: ort}
	closers := []func() error{ort.Close}

	if cfg.Engines.Ollama.URL != "" {
		e, err := ollama.NewEngine(cfg.Engines.Ollama.URL, timeout, rc)
		if err != nil {
			return nil, nil, err
		}
		engines[model.EngineOllama] = e
	}
	if cfg.Engines.LlamaCpp.URL != "" {
		engines[model.EngineLlamaCpp] = llamacpp.NewEngine(cfg.Engines.LlamaCpp.URL, timeout, rc)
	}
	return engines, closers, nil
}

// Registry returns the plugin registry
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Dispatcher returns the request dispatcher
func (s *Server) Dispatcher() *registry.Dispatcher {
	return s.dispatcher
}

// Handler returns the HTTP routes serving the dispatcher
func (s *Server) Handler() http.Handler {
	return api.NewRouter(s.dispatcher, api.Options{
		MaxConcurrent:  s.config.Server.MaxConcurrent,
		MaxUploadBytes: s.config.Server.MaxUploadBytes,
	})
}

// Close releases plugins, the cache and the engines
func (s *Server) Close() error {
	err := closeAll(s.closers)
	s.closers = nil
	return err
}

func closeAll(closers []func() error) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close failed: %w", errors.Join(errs...))
	}
	return nil
}
