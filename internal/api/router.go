// Package api serves the classifier plugins over HTTP
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/menta2k/mlserver/pkg/registry"
	"github.com/menta2k/mlserver/pkg/types"
)

// Classifier is the dispatcher the handlers delegate to
type Classifier interface {
	Plugins() []string
	Classify(ctx context.Context, name string, payload registry.Payload) ([]types.Prediction, error)
}

// Options configure the router
type Options struct {
	// MaxConcurrent limits concurrent predictions, 0 is unlimited
	MaxConcurrent  int
	MaxUploadBytes int64
}

// NewRouter registers the routes:
//
//	GET  /                        501
//	GET  /health                  200
//	GET  /services/classify       available plugin names
//	GET  /services/classify/:name 501
//	POST /services/classify       405
//	POST /services/classify/:name ranked predictions, 201
func NewRouter(classifier Classifier, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger())

	h := &handler{
		classifier:     classifier,
		maxUploadBytes: opts.MaxUploadBytes,
	}
	if opts.MaxConcurrent > 0 {
		h.limiter = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}

	r.GET("/", notImplemented)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "plugins": len(classifier.Plugins())})
	})

	services := r.Group("/services")
	{
		services.GET("/classify", h.listPlugins)
		services.GET("/classify/:name", notImplemented)
		services.POST("/classify", func(c *gin.Context) {
			c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "POST method requires a plugin name."})
		})
		services.POST("/classify/:name", h.limit(), h.classify)
	}

	return r
}

func notImplemented(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"error": "Not implemented yet."})
}
