package cached_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/evermind-ai/evermind/memory/embedder/cached"
)

// countingEmbedder tracks how many calls reach the wrapped embedder.
type countingEmbedder struct {
	calls atomic.Int64
	fail  bool
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail {
		return nil, errors.New("provider down")
	}
	return []float32{float32(len(text)), 1}, nil
}

func (e *countingEmbedder) Dimensions() int { return 2 }

func TestEmbedder_CachesByExactText(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	e, err := cached.New(inner, 128)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	defer e.Close()

	first, err := e.Embed(ctx, "user likes jazz")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	e.Wait()

	second, err := e.Embed(ctx, "user likes jazz")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("expected 1 upstream call, got %d", got)
	}
	if first[0] != second[0] {
		t.Errorf("cache returned a different vector")
	}

	if _, err := e.Embed(ctx, "different text"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("different text must reach upstream, got %d calls", got)
	}
}

func TestEmbedder_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{fail: true}
	e, err := cached.New(inner, 128)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	defer e.Close()

	if _, err := e.Embed(ctx, "text"); err == nil {
		t.Fatal("expected error from failing embedder")
	}

	inner.fail = false
	vec, err := e.Embed(ctx, "text")
	if err != nil {
		t.Fatalf("recovered embedder should succeed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("unexpected vector: %v", vec)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("expected 2 upstream calls, got %d", got)
	}
}

func TestEmbedder_DimensionsDelegated(t *testing.T) {
	e, err := cached.New(&countingEmbedder{}, 0)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	defer e.Close()
	if e.Dimensions() != 2 {
		t.Errorf("dimensions not delegated: %d", e.Dimensions())
	}
}
