// Package cached wraps an Embedder with a read-through ristretto cache.
//
// Consolidation embeds the same short statements repeatedly (every
// near-duplicate search re-embeds the candidate), so caching by exact
// text removes most embedding round-trips.
package cached

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"

	"github.com/evermind-ai/evermind/memory"
)

// Embedder is a caching wrapper around another Embedder.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache holding up to maxEntries embeddings.
func New(inner memory.Embedder, maxEntries int64) (*Embedder, error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "create embedding cache")
	}
	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for the exact text, or delegates to
// the wrapped embedder and caches the result. Errors are never cached.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, vec, 1)
	return vec, nil
}

// Dimensions returns the wrapped embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until buffered cache writes are applied. Tests use it to
// make cache hits deterministic.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}
