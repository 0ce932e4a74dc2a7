package memory

import (
	"context"

	"github.com/evermind-ai/evermind/core"
)

// Store is the vector index backend.
// Implementations: ChromemStore (embedded, local), QdrantStore (remote).
//
// Every operation carries an explicit owner ID and must never read or
// write records outside that owner's partition.
type Store interface {
	// Upsert writes a record, replacing any existing record with the
	// same ID. The record must have its embedding set.
	Upsert(ctx context.Context, rec *Record) error

	// Search returns up to limit records for the owner, ordered by
	// descending similarity to the query embedding. An empty result is
	// valid and not an error.
	Search(ctx context.Context, ownerID string, embedding []float32, limit int) ([]SearchResult, error)

	// Get retrieves a record by ID within the owner's partition.
	// Returns ErrNotFound if no such record exists, or ErrScopeViolation
	// if the ID belongs to a different owner.
	Get(ctx context.Context, ownerID, recordID string) (*Record, error)

	// List returns all records for the owner.
	List(ctx context.Context, ownerID string) ([]Record, error)

	// Delete removes a single record from the owner's partition.
	Delete(ctx context.Context, ownerID, recordID string) error

	// Clear removes every record belonging to the owner.
	Clear(ctx context.Context, ownerID string) error

	// Close releases resources.
	Close() error
}

// GraphStore is the optional relationship graph backend.
// Implementations: Neo4jGraph. The Manager tolerates a nil GraphStore.
type GraphStore interface {
	// UpsertEdge writes a triple, merging with an existing edge that has
	// the same (owner, subject, predicate) key.
	UpsertEdge(ctx context.Context, edge Edge) error

	// Edges returns all edges belonging to the owner.
	Edges(ctx context.Context, ownerID string) ([]Edge, error)

	// Clear removes every edge belonging to the owner.
	Clear(ctx context.Context, ownerID string) error

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: gemini.Embedder (API), cached.Embedder (wrapper),
// mock.Embedder (testing).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Extractor derives candidate facts from a conversation exchange.
//
// Implementations must be deterministic given identical input so the
// consolidation pipeline can be tested with a stubbed extractor.
// The package provides LLMExtractor; tests typically supply a stub.
type Extractor interface {
	Extract(ctx context.Context, turns []core.Turn) ([]Fact, error)
}

// Generator produces text from a prompt. The extraction pipeline uses
// it to distill facts; it matches the agent package's provider adapters
// so a single client can serve both chat and extraction.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Fact is one candidate statement distilled from an exchange, together
// with any relationship triples it implies.
type Fact struct {
	// Statement is a durable, subject-first natural-language fact,
	// e.g. "user prefers vegetarian food".
	Statement string

	// Confidence is the extractor's confidence in [0,1]. Zero means the
	// extractor did not score the fact.
	Confidence float64

	// Triples are the relationship edges implied by the statement.
	Triples []Triple
}
