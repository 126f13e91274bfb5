package plugin

import (
	"fmt"
	"sort"

	"github.com/menta2k/mlserver/pkg/types"
)

// Rank maps scores to labels, keeps the classes scoring strictly above
// threshold and orders them by descending score. Equal scores keep their
// class index order.
func Rank(scores []float32, labels []string, threshold float32) []types.Prediction {
	kept := make([]int, 0, len(scores))
	for i, s := range scores {
		if i < len(labels) && s > threshold {
			kept = append(kept, i)
		}
	}

	sort.SliceStable(kept, func(a, b int) bool {
		return scores[kept[a]] > scores[kept[b]]
	})

	out := make([]types.Prediction, len(kept))
	for i, idx := range kept {
		out[i] = types.Prediction{Label: labels[idx], Score: scores[idx]}
	}
	return out
}

// FormatScore renders a 0..1 score as a percentage with two decimals, "82.00%"
func FormatScore(score float32) string {
	return fmt.Sprintf("%.2f%%", float64(score)*100)
}
