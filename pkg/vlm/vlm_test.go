package vlm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/menta2k/mlserver/pkg/inference"
	"github.com/menta2k/mlserver/pkg/types"
)

var testLabels = []string{"red", "green", "blue"}

func TestSanitizeJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"trailing comma", `{"a": 1,}`, `{"a": 1}`},
		{"comments", "{\n// note\n\"a\": 1 /* x */\n}", "{\n\n\"a\": 1 \n}"},
		{"prose around", `Sure! {"a": 1} Hope that helps.`, `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeJSON(tt.input); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestParseScores(t *testing.T) {
	raw := "```json\n{\"scores\": {\"Red\": 0.7, \"blue\": 0.2, \"purple\": 0.1,}}\n```"

	scores, err := ParseScores(raw, "scores", testLabels)
	if err != nil {
		t.Fatalf("ParseScores failed: %v", err)
	}

	expected := []float32{0.7, 0, 0.2}
	for i := range expected {
		if scores[i] != expected[i] {
			t.Errorf("Score %d: expected %v, got %v", i, expected[i], scores[i])
		}
	}
}

func TestParseScoresTopLevel(t *testing.T) {
	scores, err := ParseScores(`{"green": 1.4, "red": -0.5}`, "scores", testLabels)
	if err != nil {
		t.Fatalf("ParseScores failed: %v", err)
	}
	if scores[0] != 0 || scores[1] != 1 {
		t.Errorf("Expected clamped scores, got %v", scores)
	}
}

func TestParseScoresErrors(t *testing.T) {
	for _, raw := range []string{
		"I cannot classify this image.",
		`{"scores": "red"}`,
		`{"scores": {"cyan": 0.9}}`,
	} {
		if _, err := ParseScores(raw, "scores", testLabels); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("", "scores", testLabels)
	for _, want := range []string{`"scores"`, `- "red"`, `- "blue"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %s:\n%s", want, prompt)
		}
	}

	custom := BuildPrompt("key=%[1]s labels=%[2]s", "out", []string{"a"})
	if custom != `key=out labels=- "a"` {
		t.Errorf("Unexpected custom prompt %q", custom)
	}
}

type fakeChatter struct {
	replies []string
	errs    []error
	calls   int
	model   string
	image   []byte
}

func (f *fakeChatter) Chat(ctx context.Context, model, prompt string, image []byte) (string, error) {
	i := f.calls
	f.calls++
	f.model = model
	f.image = image
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", errors.New("no reply")
}

func newTestSession(chat Chatter) *Session {
	return NewSession(chat, inference.LoadOptions{
		Name:      "colors",
		Model:     "llava:7b",
		OutputKey: "scores",
		Labels:    testLabels,
	}, RetryConfig{MaxRetries: 2, Backoff: time.Millisecond})
}

func TestSessionInfer(t *testing.T) {
	chat := &fakeChatter{replies: []string{`{"scores": {"green": 0.9}}`}}
	s := newTestSession(chat)

	input := types.Input{Mode: types.OutputBytes, Encoded: []byte{0xff, 0xd8}}
	scores, err := s.Infer(context.Background(), "image", input, "scores")
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(scores) != 3 || scores[1] != float32(0.9) {
		t.Errorf("Unexpected scores %v", scores)
	}
	if chat.model != "llava:7b" || len(chat.image) != 2 {
		t.Errorf("Chatter got model %q and %d image bytes", chat.model, len(chat.image))
	}
	if n, ok := s.OutputSize(); !ok || n != 3 {
		t.Errorf("Expected output size 3, got %d", n)
	}
}

func TestSessionInferRetries(t *testing.T) {
	chat := &fakeChatter{
		errs:    []error{errors.New("connection refused"), nil, nil},
		replies: []string{"", "not json", `{"red": 0.5}`},
	}
	s := newTestSession(chat)

	scores, err := s.Infer(context.Background(), "image", types.Input{Mode: types.OutputBytes, Encoded: []byte{1}}, "scores")
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if chat.calls != 3 {
		t.Errorf("Expected 3 calls, got %d", chat.calls)
	}
	if scores[0] != 0.5 {
		t.Errorf("Unexpected scores %v", scores)
	}
}

func TestSessionInferGivesUp(t *testing.T) {
	chat := &fakeChatter{replies: []string{"no", "no", "no", "no"}}
	s := newTestSession(chat)

	if _, err := s.Infer(context.Background(), "image", types.Input{Mode: types.OutputBytes, Encoded: []byte{1}}, "scores"); err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if chat.calls != 3 {
		t.Errorf("Expected 3 calls, got %d", chat.calls)
	}
}

func TestSessionInferNeedsBytes(t *testing.T) {
	s := newTestSession(&fakeChatter{})
	_, err := s.Infer(context.Background(), "image", types.Input{Mode: types.OutputArray, Values: []float32{1}}, "scores")
	if !errors.Is(err, types.ErrConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}
