// Package mock provides a deterministic embedder for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates deterministic embeddings without a model: identical
// text always yields an identical unit vector, and unrelated texts are
// near-orthogonal. Pin lets a test place chosen texts at chosen vectors
// to stage similarity relationships (e.g. two statements that should
// merge).
type Embedder struct {
	dims   int
	pinned map[string][]float32
}

// New creates a mock embedder with the given dimensionality.
func New(dims int) *Embedder {
	return &Embedder{
		dims:   dims,
		pinned: make(map[string][]float32),
	}
}

// Pin fixes the embedding for an exact text. The vector is normalized
// and padded or truncated to the embedder's dimensionality.
func (e *Embedder) Pin(text string, vec []float32) {
	fixed := make([]float32, e.dims)
	copy(fixed, vec)
	e.pinned[text] = normalize(fixed)
}

// Embed returns the pinned vector for the text, or a hash-derived one.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.pinned[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	// LCG keyed by the text hash: stable across runs, no model needed.
	embedding := make([]float32, e.dims)
	for i := range embedding {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
