package llamacpp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultURL is the local llama.cpp server
const DefaultURL = "http://localhost:8081"

const maxReplyTokens = 1024

// Client talks to the OpenAI-compatible API of a llama.cpp server
type Client struct {
	http *resty.Client
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type requestMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionRequest struct {
	Model          string           `json:"model"`
	Messages       []requestMessage `json:"messages"`
	Temperature    float64          `json:"temperature"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	Stream         bool             `json:"stream"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

// The reply content is either a plain string or a list of parts
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a client for serverURL. timeout bounds each request.
func NewClient(serverURL string, timeout time.Duration) *Client {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(serverURL, "/")).
			SetTimeout(timeout),
	}
}

// Ping checks that the server is up and serving models
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/v1/models")
	if err != nil {
		return fmt.Errorf("failed to reach llama.cpp server: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode())
	}
	return nil
}

// Chat sends prompt with one JPEG image and returns the reply text
func (c *Client) Chat(ctx context.Context, model, prompt string, image []byte) (string, error) {
	parts := []contentPart{{Type: "text", Text: prompt}}
	if len(image) > 0 {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)},
		})
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(completionRequest{
			Model:          model,
			Messages:       []requestMessage{{Role: "user", Content: parts}},
			MaxTokens:      maxReplyTokens,
			ResponseFormat: &responseFormat{Type: "json_object"},
		}).
		Post("/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("server returned status %d: %s", resp.StatusCode(), resp.String())
	}

	var out completionResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return replyText(out.Choices[0].Message.Content)
}

func replyText(raw json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if text != "" {
			return text, nil
		}
		return "", errors.New("empty response from llama.cpp server")
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", fmt.Errorf("unexpected message content: %w", err)
	}
	for _, p := range parts {
		if p.Text != "" {
			return p.Text, nil
		}
	}
	return "", errors.New("empty response from llama.cpp server")
}
