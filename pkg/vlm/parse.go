package vlm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// SanitizeJSON removes code fences, comments, and trailing commas from a model response
func SanitizeJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// ParseScores decodes the model response into a vector aligned with labels.
//
// Scores are read from the object under outputKey, or from the top level
// object when that key is absent. Labels match case-insensitively; labels the
// model left out score 0 and unknown keys are ignored. Values are clamped to
// [0, 1].
func ParseScores(raw, outputKey string, labels []string) ([]float32, error) {
	raw = SanitizeJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, fmt.Errorf("no json found in model response")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	body := []byte(raw)
	for k, v := range top {
		if strings.EqualFold(k, outputKey) {
			body = v
			break
		}
	}

	var scores map[string]float64
	if err := json.Unmarshal(body, &scores); err != nil {
		return nil, fmt.Errorf("model response has no score object under %q: %w", outputKey, err)
	}

	index := make(map[string]int, len(labels))
	for i, l := range labels {
		key := normalizeLabel(l)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	out := make([]float32, len(labels))
	matched := 0
	for k, v := range scores {
		i, ok := index[normalizeLabel(k)]
		if !ok {
			continue
		}
		out[i] = float32(clamp(v, 0, 1))
		matched++
	}
	if matched == 0 {
		return nil, fmt.Errorf("model response matched none of the %d labels", len(labels))
	}
	return out, nil
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
