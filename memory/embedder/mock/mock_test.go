package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/evermind-ai/evermind/memory/embedder/mock"
)

func TestEmbedder_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := mock.New(32)

	a, err := e.Embed(ctx, "user likes jazz")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.Embed(ctx, "user likes jazz")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("identical text produced different vectors at index %d", i)
		}
	}

	c, _ := e.Embed(ctx, "completely unrelated text")
	if dot(a, c) > 0.5 {
		t.Errorf("unrelated texts should not be close: sim=%f", dot(a, c))
	}
}

func TestEmbedder_UnitNorm(t *testing.T) {
	e := mock.New(32)
	vec, err := e.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 32 {
		t.Fatalf("expected 32 dims, got %d", len(vec))
	}
	if norm := dot(vec, vec); math.Abs(float64(norm)-1.0) > 1e-5 {
		t.Errorf("expected unit vector, squared norm %f", norm)
	}
}

func TestEmbedder_Pin(t *testing.T) {
	ctx := context.Background()
	e := mock.New(4)
	e.Pin("a", []float32{1, 0, 0, 0})
	e.Pin("b", []float32{2, 0, 0, 0}) // normalizes to the same direction

	a, _ := e.Embed(ctx, "a")
	b, _ := e.Embed(ctx, "b")
	if sim := dot(a, b); sim < 0.999 {
		t.Errorf("pinned parallel vectors should be identical, sim=%f", sim)
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
