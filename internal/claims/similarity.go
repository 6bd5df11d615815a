package claims

import (
	"math"

	"github.com/untoldecay/idse/internal/types"
)

// Similarity returns the cosine similarity of two texts over their
// normalized token multisets, in [0, 1]. This is the metric behind the
// DUPLICATE_STATEMENT gate: token counts, not token order, so rephrasing
// by reordering does not dodge the duplicate check.
func Similarity(a, b string) float64 {
	va := tokenCounts(a)
	vb := tokenCounts(b)
	if len(va) == 0 || len(vb) == 0 {
		if len(va) == 0 && len(vb) == 0 {
			return 1
		}
		return 0
	}

	var dot, normA, normB float64
	for token, ca := range va {
		normA += float64(ca) * float64(ca)
		if cb, ok := vb[token]; ok {
			dot += float64(ca) * float64(cb)
		}
	}
	for _, cb := range vb {
		normB += float64(cb) * float64(cb)
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func tokenCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, token := range types.NormalizeTokens(text) {
		counts[token]++
	}
	return counts
}
