// Package vlm scores labels with a vision-language model. The model is asked
// for a JSON object of per-label confidences, which is parsed back into a
// dense vector aligned with the label list.
package vlm

import (
	"fmt"
	"strings"
)

// DefaultPrompt is the scoring prompt template. %[1]s is the output key,
// %[2]s the quoted label list.
const DefaultPrompt = `You are an image classifier.

Classify the image into the following classes:
%[2]s

Return JSON only:
{
  "%[1]s": {"<class>": 0.0}
}

HARD RULES
- Include every class exactly once, spelled exactly as listed.
- Each value is a confidence between 0.0 and 1.0.
- The values should add up to 1.0.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// BuildPrompt renders template with the output key and labels. An empty
// template uses DefaultPrompt.
func BuildPrompt(template, outputKey string, labels []string) string {
	if template == "" {
		template = DefaultPrompt
	}
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = fmt.Sprintf("- %q", l)
	}
	return fmt.Sprintf(template, outputKey, strings.Join(quoted, "\n"))
}
