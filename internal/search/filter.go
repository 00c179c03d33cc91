package search

import (
	"cmp"
	"slices"

	"github.com/Aman-CERP/storyvec/internal/vectorstore"
)

// Filter drops candidates scoring below threshold, orders the rest by score
// descending then id ascending, and keeps at most limit of them. A limit
// <= 0 keeps everything. The input slice is not modified.
func Filter(candidates []vectorstore.ScoredPoint, threshold float64, limit int) []vectorstore.ScoredPoint {
	out := make([]vectorstore.ScoredPoint, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= float32(threshold) {
			out = append(out, c)
		}
	}

	slices.SortStableFunc(out, func(a, b vectorstore.ScoredPoint) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
