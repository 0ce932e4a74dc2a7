package memory

import (
	"time"

	"github.com/google/uuid"
)

// Record is a durable, owner-scoped memory: a distilled natural-language
// statement with its embedding and free-form metadata.
//
// The ID is assigned at creation and stays stable across merges; only an
// explicit delete or owner reset removes it. The embedding is recomputed
// whenever Text changes, so the two are never out of sync.
type Record struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"-"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewRecord creates a record for the given owner with a fresh ID.
// The embedding must be set before the record is stored.
func NewRecord(ownerID, text string, metadata map[string]string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Text:      text,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Supersede replaces the record's statement with a newer one, keeping the
// ID and CreatedAt stable. Metadata keys from the newer extraction
// overwrite existing ones; keys the update does not mention survive.
func (r *Record) Supersede(text string, embedding []float32, metadata map[string]string) {
	r.Text = text
	r.Embedding = embedding
	if len(metadata) > 0 {
		if r.Metadata == nil {
			r.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			r.Metadata[k] = v
		}
	}
	r.UpdatedAt = time.Now().UTC()
}

// SearchResult pairs a record with its similarity to the query embedding.
type SearchResult struct {
	Record
	Similarity float32 `json:"similarity"`
}

// Triple is a subject-predicate-object statement extracted from
// conversation, e.g. ("user", "friend_of", "faiz").
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Edge is a triple bound to an owner for storage in the relationship
// graph. Edges follow the same scoping and lifecycle rules as records.
type Edge struct {
	Triple
	OwnerID string `json:"owner_id"`
}
