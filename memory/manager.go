package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/evermind-ai/evermind/core"
)

// Config holds Manager tuning parameters. The thresholds are deployment
// tunables, not algorithm constants; the defaults suit cosine-normalized
// embedders such as text-embedding-004.
type Config struct {
	// MergeThreshold is the cosine similarity above which two statements
	// are treated as the same fact and merged in place [0.0-1.0].
	// Default: 0.90.
	MergeThreshold float64

	// SearchLimit caps the number of records returned by Search.
	// Default: 5.
	SearchLimit int

	// ProviderTimeout bounds each embedding, index, and graph call.
	// Default: 30s.
	ProviderTimeout time.Duration
}

// DefaultConfig returns the defaults used when no config is given.
var DefaultConfig = &Config{
	MergeThreshold:  0.90,
	SearchLimit:     5,
	ProviderTimeout: 30 * time.Second,
}

// Mutations summarizes what a single Add call changed. Partial backend
// failures are reported here rather than failing the whole call.
type Mutations struct {
	// Created holds the IDs of newly created records.
	Created []string

	// Updated holds the IDs of records merged or superseded in place.
	Updated []string

	// EdgesUpserted counts relationship edges written to the graph.
	EdgesUpserted int

	// Skipped counts facts dropped because the vector path failed.
	Skipped int

	// GraphErr is the first graph backend failure, if any. The vector
	// writes are unaffected by it.
	GraphErr error
}

// Manager orchestrates extraction, deduplication, persistence, and
// retrieval of memory records on top of an Embedder, a vector Store, and
// an optional GraphStore.
//
// Retrieval is read-only and lock-free. Consolidation (Add) and Clear
// serialize per owner so that two near-simultaneous adds cannot both
// miss a near-duplicate and create twin records.
type Manager struct {
	store     Store
	graph     GraphStore // optional, may be nil
	embedder  Embedder
	extractor Extractor
	config    *Config
	logger    *slog.Logger

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

// Option configures the Manager.
type Option func(*Manager)

// WithGraph attaches an optional relationship graph backend.
func WithGraph(g GraphStore) Option {
	return func(m *Manager) {
		m.graph = g
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager. A nil config uses DefaultConfig.
func NewManager(store Store, embedder Embedder, extractor Extractor, config *Config, opts ...Option) *Manager {
	if config == nil {
		config = DefaultConfig
	}
	m := &Manager{
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		config:    config,
		logger:    slog.Default(),
		owners:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Search embeds the query and returns the owner's closest records,
// ordered by descending similarity.
//
// A new owner with zero records gets an empty result, not an error.
// Embedding or index outages also degrade to an empty result: a single
// backend failure lowers answer quality, it never aborts the turn.
func (m *Manager) Search(ctx context.Context, ownerID, query string) ([]SearchResult, error) {
	if ownerID == "" {
		return nil, goerr.New("owner id is required")
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.logger.Warn("embedding unavailable, searching with empty context",
			"owner", ownerID, "error", err)
		return nil, nil
	}

	results, err := m.store.Search(ctx, ownerID, embedding, m.config.SearchLimit)
	if err != nil {
		m.logger.Warn("vector index unavailable, returning empty context",
			"owner", ownerID, "error", err)
		return nil, nil
	}

	m.logger.Debug("retrieved memories", "owner", ownerID, "count", len(results))
	return results, nil
}

// Add distills the exchange into facts and consolidates them into the
// owner's memory.
//
// Each fact is embedded and compared against the owner's nearest
// existing record. At or above MergeThreshold the existing record is
// superseded in place: its text becomes the newer statement, the
// embedding is recomputed, UpdatedAt advances, and the ID stays stable.
// Below the threshold a new record is created. Contradicting
// restatements of the same fact ("no longer vegetarian") land above the
// threshold and overwrite the stale truth.
//
// Vector and graph writes are independent: a graph outage is reported in
// Mutations.GraphErr but never blocks the vector write, and vice versa.
func (m *Manager) Add(ctx context.Context, ownerID string, turns []core.Turn) (*Mutations, error) {
	if ownerID == "" {
		return nil, goerr.New("owner id is required")
	}
	if len(turns) == 0 {
		return &Mutations{}, nil
	}

	unlock := m.lockOwner(ownerID)
	defer unlock()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	facts, err := m.extractor.Extract(ctx, turns)
	if err != nil {
		return nil, goerr.Wrap(err, "extract facts", goerr.V("owner", ownerID))
	}
	if len(facts) == 0 {
		m.logger.Debug("nothing durable in exchange", "owner", ownerID)
		return &Mutations{}, nil
	}

	mut := &Mutations{}
	for _, fact := range facts {
		m.consolidateFact(ctx, ownerID, fact, mut)
		m.persistTriples(ctx, ownerID, fact.Triples, mut)
	}

	m.logger.Info("consolidated exchange",
		"owner", ownerID,
		"created", len(mut.Created),
		"updated", len(mut.Updated),
		"edges", mut.EdgesUpserted,
		"skipped", mut.Skipped)
	return mut, nil
}

// consolidateFact runs the embed, near-duplicate search, and
// merge-or-create steps for one fact. Failures skip the fact and are
// tallied in mut; they never abort the remaining facts.
func (m *Manager) consolidateFact(ctx context.Context, ownerID string, fact Fact, mut *Mutations) {
	embedding, err := m.embedder.Embed(ctx, fact.Statement)
	if err != nil {
		m.logger.Warn("skipping fact, embedding failed", "owner", ownerID, "error", err)
		mut.Skipped++
		return
	}

	nearest, err := m.store.Search(ctx, ownerID, embedding, 1)
	if err != nil {
		m.logger.Warn("skipping fact, near-duplicate search failed", "owner", ownerID, "error", err)
		mut.Skipped++
		return
	}

	metadata := factMetadata(fact)

	if len(nearest) > 0 && float64(nearest[0].Similarity) >= m.config.MergeThreshold {
		rec := nearest[0].Record
		rec.Supersede(fact.Statement, embedding, metadata)
		if err := m.store.Upsert(ctx, &rec); err != nil {
			m.logger.Warn("merge write failed", "owner", ownerID, "record", rec.ID, "error", err)
			mut.Skipped++
			return
		}
		mut.Updated = append(mut.Updated, rec.ID)
		return
	}

	rec := NewRecord(ownerID, fact.Statement, metadata)
	rec.Embedding = embedding
	if err := m.store.Upsert(ctx, rec); err != nil {
		m.logger.Warn("record write failed", "owner", ownerID, "error", err)
		mut.Skipped++
		return
	}
	mut.Created = append(mut.Created, rec.ID)
}

// persistTriples writes the fact's relationship edges. Runs regardless
// of whether the vector path succeeded for the fact.
func (m *Manager) persistTriples(ctx context.Context, ownerID string, triples []Triple, mut *Mutations) {
	if m.graph == nil || len(triples) == 0 {
		return
	}
	for _, t := range triples {
		if err := m.graph.UpsertEdge(ctx, Edge{Triple: t, OwnerID: ownerID}); err != nil {
			m.logger.Warn("graph write failed", "owner", ownerID, "subject", t.Subject, "error", err)
			if mut.GraphErr == nil {
				mut.GraphErr = err
			}
			continue
		}
		mut.EdgesUpserted++
	}
}

// List returns every record belonging to the owner.
func (m *Manager) List(ctx context.Context, ownerID string) ([]Record, error) {
	if ownerID == "" {
		return nil, goerr.New("owner id is required")
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	records, err := m.store.List(ctx, ownerID)
	if err != nil {
		return nil, goerr.Wrap(err, "list records", goerr.V("owner", ownerID))
	}
	return records, nil
}

// Delete removes a single record after verifying it belongs to the
// owner. Deleting another owner's record fails with ErrScopeViolation
// rather than silently doing nothing.
func (m *Manager) Delete(ctx context.Context, ownerID, recordID string) error {
	if ownerID == "" {
		return goerr.New("owner id is required")
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	if _, err := m.store.Get(ctx, ownerID, recordID); err != nil {
		return goerr.Wrap(err, "verify record ownership",
			goerr.V("owner", ownerID), goerr.V("record", recordID))
	}
	if err := m.store.Delete(ctx, ownerID, recordID); err != nil {
		return goerr.Wrap(err, "delete record",
			goerr.V("owner", ownerID), goerr.V("record", recordID))
	}
	return nil
}

// Clear removes all records and edges for the owner. The two backends
// are cleared independently; the joined error reports any that failed.
func (m *Manager) Clear(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return goerr.New("owner id is required")
	}

	unlock := m.lockOwner(ownerID)
	defer unlock()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var vecErr, graphErr error
	if err := m.store.Clear(ctx, ownerID); err != nil {
		vecErr = goerr.Wrap(err, "clear vector index", goerr.V("owner", ownerID))
	}
	if m.graph != nil {
		if err := m.graph.Clear(ctx, ownerID); err != nil {
			graphErr = goerr.Wrap(err, "clear relationship graph", goerr.V("owner", ownerID))
		}
	}
	return errors.Join(vecErr, graphErr)
}

// lockOwner serializes mutation for one owner and returns the unlock
// func. Different owners proceed fully independently.
func (m *Manager) lockOwner(ownerID string) func() {
	m.mu.Lock()
	lk, ok := m.owners[ownerID]
	if !ok {
		lk = &sync.Mutex{}
		m.owners[ownerID] = lk
	}
	m.mu.Unlock()

	lk.Lock()
	return lk.Unlock
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := m.config.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultConfig.ProviderTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func factMetadata(fact Fact) map[string]string {
	metadata := map[string]string{
		"source": "conversation",
	}
	if fact.Confidence > 0 {
		metadata["confidence"] = strconv.FormatFloat(fact.Confidence, 'f', 2, 64)
	}
	return metadata
}

// String renders a compact mutation summary for logs.
func (m *Mutations) String() string {
	return fmt.Sprintf("created=%d updated=%d edges=%d skipped=%d",
		len(m.Created), len(m.Updated), m.EdgesUpserted, m.Skipped)
}
