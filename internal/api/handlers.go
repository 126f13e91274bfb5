package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/menta2k/mlserver/pkg/plugin"
	"github.com/menta2k/mlserver/pkg/registry"
	"github.com/menta2k/mlserver/pkg/types"
)

// Form fields of a prediction request
const (
	fieldImageFile = "imageFile"
	fieldImagePath = "imagePath"
	fieldX         = "x"
	fieldY         = "y"
)

type handler struct {
	classifier     Classifier
	limiter        *semaphore.Weighted
	maxUploadBytes int64
}

func (h *handler) listPlugins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"configured_plugin_names": h.classifier.Plugins()})
}

func (h *handler) classify(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	payload := registry.Payload{}

	file, header, err := c.Request.FormFile(fieldImageFile)
	switch {
	case err == nil:
		defer file.Close()
		payload.Source.Reader = file
		payload.Source.Name = header.Filename
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// no upload, imagePath may be set
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read form: " + err.Error()})
		return
	}
	payload.Source.Path = c.PostForm(fieldImagePath)

	if payload.X, err = formInt(c, fieldX); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if payload.Y, err = formInt(c, fieldY); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	predictions, err := h.classifier.Classify(c.Request.Context(), c.Param("name"), payload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, plugin.Format(predictions))
}

// formInt reads an optional integer form field
func formInt(c *gin.Context, field string) (*int, error) {
	raw, ok := c.GetPostForm(field)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, types.InputErrorf("%s must be an integer, got %q", field, raw)
	}
	return &v, nil
}

// respondError maps the error taxonomy to a status. Unclassified errors are
// logged and answered with a generic message.
func respondError(c *gin.Context, err error) {
	c.Error(err)
	switch {
	case errors.Is(err, types.ErrInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, types.ErrServiceUnavailable):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		log.WithFields(log.Fields{
			"context":    "api",
			"request_id": c.GetString(requestIDKey),
			"plugin":     c.Param("name"),
		}).WithError(err).Error("Prediction failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "prediction failed"})
	}
}
