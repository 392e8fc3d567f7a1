// Package embed converts text into vectors for the document index.
// The actual embedding computation is an external concern; implementations
// here are thin clients (openai), a deterministic stand-in for tests (mock),
// and an optional local model behind the onnx build tag.
package embed

import (
	"context"
	"math"
)

// Embedder converts text to a vector. Implementations must be safe for
// concurrent use; the index embeds chunks and queries from multiple turns.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// normalize converts a vector to unit length.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
