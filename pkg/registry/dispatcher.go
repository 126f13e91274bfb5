package registry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/menta2k/mlserver/pkg/transform"
	"github.com/menta2k/mlserver/pkg/types"
)

// DefaultMaxResults is used when a dispatcher is created with maxResults <= 0
const DefaultMaxResults = 5

// Cache stores ranked predictions. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]types.Prediction, bool, error)
	Set(ctx context.Context, key string, predictions []types.Prediction) error
}

// Dispatcher validates requests and runs them against the registry
type Dispatcher struct {
	registry   *Registry
	maxResults int
	cache      Cache
	limits     transform.Limits
	logger     *log.Entry
}

// NewDispatcher creates a dispatcher returning at most maxResults predictions
// per request. cache may be nil. limits bound the image bytes buffered to
// compute cache keys.
func NewDispatcher(r *Registry, maxResults int, cache Cache, limits transform.Limits) *Dispatcher {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Dispatcher{
		registry:   r,
		maxResults: maxResults,
		cache:      cache,
		limits:     limits,
		logger:     log.WithField("context", "services.classify"),
	}
}

// Plugins lists the available plugin names
func (d *Dispatcher) Plugins() []string {
	return d.registry.List()
}

// Classify runs the named plugin on the payload and returns the best
// predictions, highest score first.
func (d *Dispatcher) Classify(ctx context.Context, name string, payload Payload) ([]types.Prediction, error) {
	start := time.Now()

	p, err := d.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	key := ""
	if d.cache != nil {
		if payload, key, err = d.cacheKey(name, payload); err != nil {
			return nil, err
		}
		if cached, ok, err := d.cache.Get(ctx, key); err != nil {
			d.logger.WithError(err).Warn("Cache lookup failed")
		} else if ok {
			d.completed(name, start, true)
			return d.truncate(cached), nil
		}
	}

	predictions, err := p.Process(ctx, payload.Source, payload.Point())
	if err != nil {
		return nil, err
	}
	predictions = d.truncate(predictions)

	if key != "" {
		if err := d.cache.Set(ctx, key, predictions); err != nil {
			d.logger.WithError(err).Warn("Cache store failed")
		}
	}

	d.completed(name, start, false)
	return predictions, nil
}

func (d *Dispatcher) truncate(predictions []types.Prediction) []types.Prediction {
	if len(predictions) > d.maxResults {
		return predictions[:d.maxResults]
	}
	return predictions
}

func (d *Dispatcher) completed(name string, start time.Time, cached bool) {
	d.logger.WithFields(log.Fields{
		"plugin":   name,
		"duration": time.Since(start).Seconds(),
		"cached":   cached,
	}).Info("Completed request")
}

// cacheKey buffers the image so it can be hashed. An uploaded stream is
// replaced by the buffer so the plugin reads the same bytes.
func (d *Dispatcher) cacheKey(name string, payload Payload) (Payload, string, error) {
	data, err := d.limits.ReadSource(payload.Source)
	if err != nil {
		return payload, "", err
	}
	if payload.Source.Reader != nil {
		payload.Source.Reader = bytes.NewReader(data)
	}
	sum := sha256.Sum256(data)
	return payload, CacheKey(name, sum[:], payload.Point()), nil
}

// CacheKey identifies a prediction by plugin, image digest and mark point
func CacheKey(pluginName string, digest []byte, point *types.Point) string {
	mark := "-"
	if point != nil {
		mark = fmt.Sprintf("%d:%d", point.X, point.Y)
	}
	return fmt.Sprintf("mlserver:predict:%s:%s:%s", pluginName, hex.EncodeToString(digest), mark)
}
