package chromem_test

import (
	"context"
	"errors"
	"testing"

	"github.com/evermind-ai/evermind/memory"
	"github.com/evermind-ai/evermind/memory/embedder/mock"
	"github.com/evermind-ai/evermind/memory/store/chromem"
)

func newStore(t *testing.T) *chromem.Store {
	t.Helper()
	store, err := chromem.New()
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store
}

func embed(t *testing.T, e *mock.Embedder, text string) []float32 {
	t.Helper()
	vec, err := e.Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	return vec
}

func storeRecord(t *testing.T, s *chromem.Store, e *mock.Embedder, ownerID, text string) *memory.Record {
	t.Helper()
	rec := memory.NewRecord(ownerID, text, nil)
	rec.Embedding = embed(t, e, text)
	if err := s.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return rec
}

func TestStore_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	embedder := mock.New(16)

	rec := storeRecord(t, store, embedder, "u1", "user likes jazz")

	results, err := store.Search(ctx, "u1", embed(t, embedder, "user likes jazz"), 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != rec.ID || results[0].Text != "user likes jazz" {
		t.Errorf("unexpected result: %+v", results[0])
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("identical text should score ~1.0, got %f", results[0].Similarity)
	}
}

func TestStore_UpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	embedder := mock.New(16)

	rec := storeRecord(t, store, embedder, "u1", "user is vegetarian")
	rec.Supersede("user eats chicken", embed(t, embedder, "user eats chicken"), nil)
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert update: %v", err)
	}

	records, err := store.List(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("update must not duplicate, got %d records", len(records))
	}
	if records[0].Text != "user eats chicken" {
		t.Errorf("unexpected text: %q", records[0].Text)
	}
}

func TestStore_SearchIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	embedder := mock.New(16)

	storeRecord(t, store, embedder, "u1", "user likes jazz")

	results, err := store.Search(ctx, "u2", embed(t, embedder, "user likes jazz"), 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("u2 saw u1's records: %+v", results)
	}
}

func TestStore_SearchLimitAboveCollectionSize(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	embedder := mock.New(16)

	storeRecord(t, store, embedder, "u1", "user likes jazz")

	// chromem rejects nResults > collection size; the store must clamp.
	results, err := store.Search(ctx, "u1", embed(t, embedder, "anything"), 10)
	if err != nil {
		t.Fatalf("search with large limit: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestStore_GetScopeViolation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	embedder := mock.New(16)

	rec := storeRecord(t, store, embedder, "u1", "user likes jazz")

	if _, err := store.Get(ctx, "u2", rec.ID); !errors.Is(err, memory.ErrScopeViolation) {
		t.Errorf("cross-owner get should report scope violation, got %v", err)
	}
	if _, err := store.Get(ctx, "u1", "no-such-id"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("missing record should report not found, got %v", err)
	}
}

func TestStore_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	embedder := mock.New(16)

	r1 := storeRecord(t, store, embedder, "u1", "user likes jazz")
	storeRecord(t, store, embedder, "u1", "user lives in London")
	storeRecord(t, store, embedder, "u2", "user likes jazz")

	if err := store.Delete(ctx, "u2", r1.ID); !errors.Is(err, memory.ErrScopeViolation) {
		t.Fatalf("cross-owner delete should fail, got %v", err)
	}
	if err := store.Delete(ctx, "u1", r1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	records, _ := store.List(ctx, "u1")
	if len(records) != 1 {
		t.Fatalf("expected 1 record after delete, got %d", len(records))
	}

	if err := store.Clear(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	records, _ = store.List(ctx, "u1")
	if len(records) != 0 {
		t.Errorf("u1 records survived clear")
	}
	others, _ := store.List(ctx, "u2")
	if len(others) != 1 {
		t.Errorf("clear(u1) touched u2")
	}

	// Cleared owner can store again.
	storeRecord(t, store, embedder, "u1", "user likes jazz")
	records, _ = store.List(ctx, "u1")
	if len(records) != 1 {
		t.Errorf("store unusable after clear: %d records", len(records))
	}
}
