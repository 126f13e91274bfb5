// Package plugin binds a model descriptor to a loaded inference session and
// runs the preprocess, infer and rank pipeline for each request.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/menta2k/mlserver/pkg/inference"
	"github.com/menta2k/mlserver/pkg/model"
	"github.com/menta2k/mlserver/pkg/preprocess"
	"github.com/menta2k/mlserver/pkg/transform"
	"github.com/menta2k/mlserver/pkg/types"
)

// Classifier predicts ranked labels for an image and an optional mark point
type Classifier interface {
	Process(ctx context.Context, src types.Source, point *types.Point) ([]types.Prediction, error)
}

// Options are the application-wide preprocessing defaults
type Options struct {
	JPEGQuality int
	Background  color.Color
	// Limits bound the image bytes read and the pixels decoded per request
	Limits transform.Limits
}

// Plugin is a configured image classifier. It is immutable after New and
// safe for concurrent use.
type Plugin struct {
	name       string
	descriptor model.Descriptor
	labels     []string
	session    inference.Session
	pre        preprocess.Options
	limits     transform.Limits
	threshold  float32
	logger     *log.Entry
}

var _ Classifier = (*Plugin)(nil)

// New loads the labels and the model named by d.
//
// Unreadable model or label files are types.ErrModelUnavailable. A model
// whose output size disagrees with the label count is types.ErrConfiguration.
func New(ctx context.Context, name string, d *model.Descriptor, engine inference.Engine, opts Options) (*Plugin, error) {
	labelsPath, err := d.LabelsPath()
	if err != nil {
		return nil, err
	}
	labels, err := model.LoadLabels(labelsPath)
	if err != nil {
		return nil, err
	}
	modelPath, err := d.ModelPath()
	if err != nil {
		return nil, err
	}
	pre, err := preprocess.FromDescriptor(d, opts.JPEGQuality, opts.Background)
	if err != nil {
		return nil, err
	}

	remote := ""
	if d.Remote() {
		remote = d.InputFiles.Model
	}
	session, err := engine.Load(ctx, inference.LoadOptions{
		Name:      name,
		Path:      modelPath,
		Model:     remote,
		InputKey:  d.Tensors.Input,
		OutputKey: d.Tensors.Output,
		Labels:    labels,
		Prompt:    d.Prompt,
	})
	if err != nil {
		return nil, err
	}

	if sizer, ok := session.(inference.OutputSizer); ok {
		if n, known := sizer.OutputSize(); known && n != len(labels) {
			session.Close()
			return nil, fmt.Errorf("%w: model %s has %d outputs but %d labels",
				types.ErrConfiguration, d.Model.Name, n, len(labels))
		}
	}

	return &Plugin{
		name:       name,
		descriptor: *d,
		labels:     labels,
		session:    session,
		pre:        pre,
		limits:     opts.Limits,
		threshold:  d.ScoreThreshold(),
		logger:     log.WithField("context", "plugin."+name),
	}, nil
}

// Name returns the registry name of the plugin
func (p *Plugin) Name() string {
	return p.name
}

// Description returns the model description
func (p *Plugin) Description() string {
	return p.descriptor.Model.Description
}

// Descriptor returns a copy of the model descriptor
func (p *Plugin) Descriptor() model.Descriptor {
	return p.descriptor
}

// Labels returns a copy of the label list
func (p *Plugin) Labels() []string {
	return append([]string(nil), p.labels...)
}

// Process classifies the image in src. point is optional and only used by
// models with crop factors configured.
func (p *Plugin) Process(ctx context.Context, src types.Source, point *types.Point) (predictions []types.Prediction, err error) {
	start := time.Now()
	defer func() {
		p.logPrediction(src, start, predictions, err)
	}()

	img, err := p.limits.LoadSource(src)
	if err != nil {
		return nil, err
	}

	input, err := preprocess.Run(img, point, p.pre)
	if err != nil {
		return nil, err
	}

	scores, err := p.session.Infer(ctx, p.descriptor.Tensors.Input, input, p.descriptor.Tensors.Output)
	if err != nil {
		return nil, fmt.Errorf("prediction with %s failed: %w", p.name, err)
	}
	if len(scores) != len(p.labels) {
		return nil, fmt.Errorf("%w: model %s returned %d scores for %d labels",
			types.ErrConfiguration, p.name, len(scores), len(p.labels))
	}

	return Rank(scores, p.labels, p.threshold), nil
}

// logPrediction writes the single log entry of a Process call
func (p *Plugin) logPrediction(src types.Source, start time.Time, predictions []types.Prediction, err error) {
	entry := p.logger.WithFields(log.Fields{
		"duration": time.Since(start).Seconds(),
		"source":   src.Identifier(),
	})
	if err != nil {
		entry.WithError(err).Warn("Prediction failed")
		return
	}

	results, merr := json.Marshal(Format(predictions))
	if merr != nil {
		entry.WithError(merr).Info("Completed prediction")
		return
	}
	entry.WithField("results", string(results)).Info("Completed prediction")
}

// Close releases the inference session
func (p *Plugin) Close() error {
	return p.session.Close()
}

// Formatted is a prediction with its score rendered by FormatScore
type Formatted struct {
	Label string `json:"label"`
	Score string `json:"score"`
}

// Format renders predictions for responses and logs
func Format(predictions []types.Prediction) []Formatted {
	out := make([]Formatted, len(predictions))
	for i, p := range predictions {
		out[i] = Formatted{Label: p.Label, Score: FormatScore(p.Score)}
	}
	return out
}
