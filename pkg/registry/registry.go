// Package registry builds the named set of classifier plugins once at startup
// and routes prediction requests to them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/menta2k/mlserver/pkg/inference"
	"github.com/menta2k/mlserver/pkg/model"
	"github.com/menta2k/mlserver/pkg/plugin"
	"github.com/menta2k/mlserver/pkg/types"
)

// Entry configures one plugin: the name it is served under, the model
// directory it is built from and whether a load failure may be tolerated.
type Entry struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	Optional bool   `json:"optional"`
}

// Plugin is what the registry serves
type Plugin interface {
	plugin.Classifier
	Name() string
	Close() error
}

// Result is the outcome of constructing one plugin. Exactly one of Plugin
// and Unavailable is set.
type Result struct {
	Name        string
	Plugin      Plugin
	Unavailable error
}

// Available reports whether the plugin constructed
func (r Result) Available() bool {
	return r.Plugin != nil
}

// Registry maps plugin names to plugins or the reason they are unavailable.
// It is read-only after construction.
type Registry struct {
	order   []string
	results map[string]Result
}

// New creates a registry from already constructed results, in listing order
func New(results []Result) (*Registry, error) {
	r := &Registry{results: make(map[string]Result, len(results))}
	for _, res := range results {
		if res.Name == "" {
			return nil, fmt.Errorf("%w: plugin without a name", types.ErrConfiguration)
		}
		if _, dup := r.results[res.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate plugin name %q", types.ErrConfiguration, res.Name)
		}
		if res.Plugin == nil && res.Unavailable == nil {
			res.Unavailable = types.ErrModelUnavailable
		}
		r.order = append(r.order, res.Name)
		r.results[res.Name] = res
	}
	return r, nil
}

// Build constructs every entry in order. engines maps descriptor engine names
// to loaders.
//
// A failing optional entry is recorded as unavailable. A failing required
// entry aborts the build with an error matching types.ErrConfiguration, and
// the plugins built so far are closed.
func Build(ctx context.Context, entries []Entry, modelsDir string, engines map[string]inference.Engine, opts plugin.Options) (*Registry, error) {
	logger := log.WithField("context", "registry")
	results := make([]Result, 0, len(entries))

	closeAll := func() {
		for _, res := range results {
			if res.Plugin != nil {
				res.Plugin.Close()
			}
		}
	}

	for _, e := range entries {
		start := time.Now()
		p, err := construct(ctx, e, modelsDir, engines, opts)
		if err != nil {
			if !e.Optional {
				closeAll()
				if errors.Is(err, types.ErrConfiguration) {
					return nil, fmt.Errorf("plugin %s: %w", e.Name, err)
				}
				return nil, fmt.Errorf("%w: required plugin %s: %w", types.ErrConfiguration, e.Name, err)
			}
			logger.WithFields(log.Fields{
				"plugin": e.Name,
				"model":  e.Model,
			}).WithError(err).Warn("Optional plugin is unavailable")
			results = append(results, Result{Name: e.Name, Unavailable: err})
			continue
		}

		logger.WithFields(log.Fields{
			"plugin":   e.Name,
			"model":    e.Model,
			"duration": time.Since(start).Seconds(),
		}).Info("Plugin ready")
		results = append(results, Result{Name: e.Name, Plugin: p})
	}

	r, err := New(results)
	if err != nil {
		closeAll()
		return nil, err
	}
	return r, nil
}

func construct(ctx context.Context, e Entry, modelsDir string, engines map[string]inference.Engine, opts plugin.Options) (*plugin.Plugin, error) {
	if e.Name == "" || e.Model == "" {
		return nil, fmt.Errorf("%w: plugin entry needs a name and a model", types.ErrConfiguration)
	}
	d, err := model.LoadDescriptor(modelsDir, e.Model)
	if err != nil {
		return nil, err
	}
	engine, ok := engines[d.Engine]
	if !ok || engine == nil {
		return nil, fmt.Errorf("%w: engine %q is not configured", types.ErrModelUnavailable, d.Engine)
	}
	return plugin.New(ctx, e.Name, d, engine, opts)
}

// List returns the names of the plugins that constructed, in configuration order
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.results[name].Available() {
			names = append(names, name)
		}
	}
	return names
}

// Results returns every entry including unavailable ones, in configuration order
func (r *Registry) Results() []Result {
	out := make([]Result, len(r.order))
	for i, name := range r.order {
		out[i] = r.results[name]
	}
	return out
}

// Lookup returns the plugin served under name.
//
// A name that was never configured is types.ErrUnknownPlugin. A configured
// plugin that failed to construct is types.ErrServiceUnavailable.
func (r *Registry) Lookup(name string) (Plugin, error) {
	res, ok := r.results[name]
	if !ok {
		return nil, fmt.Errorf("%w: expected plugin name as one of %q, but got: %q",
			types.ErrUnknownPlugin, r.order, name)
	}
	if !res.Available() {
		return nil, fmt.Errorf("%w: that plugin has not been setup on the server. "+
			"Ensure it has a valid model file and that this is indicated in the model descriptor",
			types.ErrServiceUnavailable)
	}
	return res.Plugin, nil
}

// Close releases every constructed plugin
func (r *Registry) Close() error {
	var errs []error
	for _, name := range r.order {
		if p := r.results[name].Plugin; p != nil {
			if err := p.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
