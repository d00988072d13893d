package store

import (
	"fmt"
	"math"
)

// cosineSimilarity computes the cosine similarity between two vectors of
// equal dimension. A zero-magnitude vector scores 0 rather than erroring:
// a degenerate embedding should rank last, not abort the search.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na2, nb2 float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}
