package embed

import (
	"context"
	"hash/fnv"
	"math"
)

// Mock is a deterministic embedder for tests and offline development.
// Vectors are derived from a hash of the text, so identical texts always map
// to identical vectors; there is no real semantic similarity.
type Mock struct {
	dimensions int
}

// NewMock creates a mock embedder with the given dimensionality.
func NewMock(dimensions int) *Mock {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Mock{dimensions: dimensions}
}

// Embed generates a deterministic unit vector from the text hash.
func (m *Mock) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dimensions)
	for i := range vec {
		// LCG keyed by the text hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (m *Mock) Dimensions() int {
	return m.dimensions
}
