package vlm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"

	"github.com/menta2k/mlserver/pkg/inference"
	"github.com/menta2k/mlserver/pkg/types"
)

// Chatter sends one prompt with one image to a vision model and returns the
// text of its reply.
type Chatter interface {
	Chat(ctx context.Context, model, prompt string, image []byte) (string, error)
}

// RetryConfig bounds retries of failed or unparseable model calls
type RetryConfig struct {
	MaxRetries uint64
	Backoff    time.Duration
}

// DefaultRetry retries twice with a Fibonacci backoff starting at one second
var DefaultRetry = RetryConfig{MaxRetries: 2, Backoff: time.Second}

// Session scores images against a fixed label list through a Chatter
type Session struct {
	chat   Chatter
	model  string
	prompt string
	labels []string
	retry  RetryConfig
	logger *log.Entry
}

// NewSession creates a session for opts.Model. The prompt is rendered once.
func NewSession(chat Chatter, opts inference.LoadOptions, rc RetryConfig) *Session {
	labels := append([]string(nil), opts.Labels...)
	return &Session{
		chat:   chat,
		model:  opts.Model,
		prompt: BuildPrompt(opts.Prompt, opts.OutputKey, labels),
		labels: labels,
		retry:  rc,
		logger: log.WithField("context", "vlm."+opts.Name),
	}
}

// Infer sends the encoded image and parses the reply into a score vector
func (s *Session) Infer(ctx context.Context, inputKey string, input types.Input, outputKey string) ([]float32, error) {
	if input.Mode != types.OutputBytes || len(input.Encoded) == 0 {
		return nil, fmt.Errorf("%w: vision model %s needs an encoded image", types.ErrConfiguration, s.model)
	}

	backoff := retry.NewFibonacci(max(s.retry.Backoff, time.Millisecond))
	backoff = retry.WithMaxRetries(s.retry.MaxRetries, backoff)

	var scores []float32
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		reply, err := s.chat.Chat(ctx, s.model, s.prompt, input.Encoded)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logger.WithError(err).WithField("attempt", attempt).Warn("model call failed")
			return retry.RetryableError(err)
		}

		parsed, err := ParseScores(reply, outputKey, s.labels)
		if err != nil {
			s.logger.WithError(err).WithField("attempt", attempt).Warn("unusable model reply")
			return retry.RetryableError(err)
		}
		scores = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vision model %s: %w", s.model, err)
	}
	return scores, nil
}

// OutputSize is the label count; the vector is built from the labels
func (s *Session) OutputSize() (int, bool) {
	return len(s.labels), true
}

// Close is a no-op; the remote server owns the model
func (s *Session) Close() error {
	return nil
}
