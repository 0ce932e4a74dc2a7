// Package chromem implements the vector Store interface on chromem-go,
// a pure Go embedded vector database. It is the default backend for
// local development and tests; production deployments use the Qdrant
// store.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"

	"github.com/evermind-ai/evermind/memory"
)

// Store keeps one chromem collection per owner for hard partition
// isolation, plus a record index for lookups chromem does not offer
// (get by ID, list, cross-owner scope checks).
type Store struct {
	db *chromem.DB

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
	records     map[string]*memory.Record // record ID -> record
}

// New creates an in-memory chromem store.
func New() (*Store, error) {
	return &Store{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
		records:     make(map[string]*memory.Record),
	}, nil
}

// Upsert writes a record into the owner's collection, replacing any
// existing document with the same ID.
func (s *Store) Upsert(ctx context.Context, rec *memory.Record) error {
	if rec.OwnerID == "" {
		return goerr.New("record has no owner")
	}
	if len(rec.Embedding) == 0 {
		return goerr.New("record has no embedding", goerr.V("record", rec.ID))
	}

	col, err := s.getOrCreateCollection(rec.OwnerID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Embedding,
		Metadata:  docMetadata(rec),
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "add document", goerr.V("record", rec.ID))
	}

	clone := cloneRecord(rec)
	s.mu.Lock()
	s.records[rec.ID] = clone
	s.mu.Unlock()
	return nil
}

// Search returns the owner's closest records by cosine similarity.
func (s *Store) Search(ctx context.Context, ownerID string, embedding []float32, limit int) ([]memory.SearchResult, error) {
	s.mu.RLock()
	col, exists := s.collections[ownerID]
	s.mu.RUnlock()
	if !exists {
		return nil, nil // new owner, nothing stored yet
	}

	// chromem rejects nResults larger than the collection.
	if count := col.Count(); limit > count {
		limit = count
	}
	if limit == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "query embedding", goerr.V("owner", ownerID))
	}

	out := make([]memory.SearchResult, 0, len(results))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, result := range results {
		rec, ok := s.records[result.ID]
		if !ok || rec.OwnerID != ownerID {
			continue
		}
		out = append(out, memory.SearchResult{
			Record:     *cloneRecord(rec),
			Similarity: result.Similarity,
		})
	}
	return out, nil
}

// Get retrieves a record by ID within the owner's partition.
func (s *Store) Get(ctx context.Context, ownerID, recordID string) (*memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordID]
	if !ok {
		return nil, goerr.Wrap(memory.ErrNotFound, "get record", goerr.V("record", recordID))
	}
	if rec.OwnerID != ownerID {
		return nil, goerr.Wrap(memory.ErrScopeViolation, "get record",
			goerr.V("owner", ownerID), goerr.V("record", recordID))
	}
	return cloneRecord(rec), nil
}

// List returns all records for the owner, oldest first.
func (s *Store) List(ctx context.Context, ownerID string) ([]memory.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []memory.Record
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			out = append(out, *cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a single record from the owner's partition.
func (s *Store) Delete(ctx context.Context, ownerID, recordID string) error {
	if _, err := s.Get(ctx, ownerID, recordID); err != nil {
		return err
	}

	s.mu.RLock()
	col := s.collections[ownerID]
	s.mu.RUnlock()
	if col != nil {
		if err := col.Delete(ctx, nil, nil, recordID); err != nil {
			return goerr.Wrap(err, "delete document", goerr.V("record", recordID))
		}
	}

	s.mu.Lock()
	delete(s.records, recordID)
	s.mu.Unlock()
	return nil
}

// Clear removes the owner's whole collection.
func (s *Store) Clear(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[ownerID]; exists {
		if err := s.db.DeleteCollection(collectionName(ownerID)); err != nil {
			return goerr.Wrap(err, "delete collection", goerr.V("owner", ownerID))
		}
		delete(s.collections, ownerID)
	}
	for id, rec := range s.records {
		if rec.OwnerID == ownerID {
			delete(s.records, id)
		}
	}
	return nil
}

// Close releases resources. chromem keeps everything in memory, so this
// is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) getOrCreateCollection(ownerID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[ownerID]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, exists := s.collections[ownerID]; exists {
		return col, nil
	}

	col, err := s.db.CreateCollection(collectionName(ownerID), nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "create collection", goerr.V("owner", ownerID))
	}
	s.collections[ownerID] = col
	return col, nil
}

func collectionName(ownerID string) string {
	return fmt.Sprintf("owner_%s", ownerID)
}

func docMetadata(rec *memory.Record) map[string]string {
	metadata := map[string]string{
		"owner_id":   rec.OwnerID,
		"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range rec.Metadata {
		metadata[k] = v
	}
	return metadata
}

func cloneRecord(rec *memory.Record) *memory.Record {
	clone := *rec
	clone.Embedding = append([]float32(nil), rec.Embedding...)
	if rec.Metadata != nil {
		clone.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
