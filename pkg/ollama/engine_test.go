package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/menta2k/mlserver/pkg/inference"
	"github.com/menta2k/mlserver/pkg/types"
	"github.com/menta2k/mlserver/pkg/vlm"
)

// newTestServer emulates /api/show and /api/chat for a single known model
func newTestServer(t *testing.T, known, reply string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/show", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != known {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "model '" + req.Model + "' not found"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"modelfile": "FROM " + known})
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Images []string `json:"images"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Images) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "expected one image"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":   req.Model,
			"message": map[string]string{"role": "assistant", "content": reply},
			"done":    true,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEngineLoadAndInfer(t *testing.T) {
	srv := newTestServer(t, "llava:7b", `{"scores": {"red": 0.1, "blue": 0.8}}`)

	engine, err := NewEngine(srv.URL, time.Second, vlm.RetryConfig{Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	session, err := engine.Load(context.Background(), inference.LoadOptions{
		Name:      "colors",
		Model:     "llava:7b",
		OutputKey: "scores",
		Labels:    []string{"red", "green", "blue"},
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	scores, err := session.Infer(context.Background(), "image",
		types.Input{Mode: types.OutputBytes, Encoded: []byte{0xff, 0xd8, 0xff}}, "scores")
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	expected := []float32{0.1, 0, 0.8}
	for i := range expected {
		if scores[i] != expected[i] {
			t.Errorf("Score %d: expected %v, got %v", i, expected[i], scores[i])
		}
	}
}

func TestEngineLoadUnknownModel(t *testing.T) {
	srv := newTestServer(t, "llava:7b", "{}")

	engine, err := NewEngine(srv.URL, time.Second, vlm.RetryConfig{})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	_, err = engine.Load(context.Background(), inference.LoadOptions{Name: "colors", Model: "missing:1b"})
	if !errors.Is(err, types.ErrModelUnavailable) {
		t.Errorf("Expected model unavailable, got %v", err)
	}
}

func TestNewEngineBadURL(t *testing.T) {
	if _, err := NewEngine("localhost", time.Second, vlm.RetryConfig{}); !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}
