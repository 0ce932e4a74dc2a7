// Package qdrant implements the vector Store interface on a remote
// Qdrant instance over gRPC. One collection holds all owners; every
// query and write carries an owner_id payload filter, with a keyword
// index on owner_id so the filter stays cheap.
package qdrant

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	qd "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/evermind-ai/evermind/memory"
)

// Config holds Qdrant connection settings.
type Config struct {
	// Host is the Qdrant gRPC host. Default: "localhost".
	Host string

	// Port is the Qdrant gRPC port. Default: 6334.
	Port int

	// APIKey authenticates against Qdrant Cloud. Empty for local.
	APIKey string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool

	// Collection is the collection name. Default: "memory_agent".
	Collection string

	// Dimensions is the embedding size the collection is created with.
	// Default: 768.
	Dimensions int
}

func (c *Config) defaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "memory_agent"
	}
	if c.Dimensions == 0 {
		c.Dimensions = 768
	}
}

// Store is a Qdrant-backed vector store.
type Store struct {
	client     *qd.Client
	collection string
}

// New connects to Qdrant and ensures the collection and owner_id
// payload index exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	client, err := qd.NewClient(&qd.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(32 << 20)),
		},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "connect to qdrant", goerr.V("host", cfg.Host))
	}

	s := &Store{client: client, collection: cfg.Collection}
	if err := s.ensureCollection(ctx, cfg.Dimensions); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context, dims int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return goerr.Wrap(err, "check collection", goerr.V("collection", s.collection))
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     uint64(dims),
			Distance: qd.Distance_Cosine,
		}),
	})
	if err != nil {
		return goerr.Wrap(err, "create collection", goerr.V("collection", s.collection))
	}

	_, err = s.client.CreateFieldIndex(ctx, &qd.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "owner_id",
		FieldType:      qd.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return goerr.Wrap(err, "index owner_id", goerr.V("collection", s.collection))
	}
	return nil
}

// Upsert writes a record as a Qdrant point keyed by the record ID.
func (s *Store) Upsert(ctx context.Context, rec *memory.Record) error {
	if rec.OwnerID == "" {
		return goerr.New("record has no owner")
	}
	if len(rec.Embedding) == 0 {
		return goerr.New("record has no embedding", goerr.V("record", rec.ID))
	}

	payload := map[string]any{
		"owner_id":   rec.OwnerID,
		"text":       rec.Text,
		"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range rec.Metadata {
		payload["meta_"+k] = v
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*qd.PointStruct{{
			Id:      qd.NewID(rec.ID),
			Vectors: qd.NewVectors(rec.Embedding...),
			Payload: qd.NewValueMap(payload),
		}},
	})
	if err != nil {
		return goerr.Wrap(err, "upsert point", goerr.V("record", rec.ID))
	}
	return nil
}

// Search returns the owner's closest records by cosine similarity.
func (s *Store) Search(ctx context.Context, ownerID string, embedding []float32, limit int) ([]memory.SearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	limitU := uint64(limit)

	points, err := s.client.Query(ctx, &qd.QueryPoints{
		CollectionName: s.collection,
		Query:          qd.NewQuery(embedding...),
		Filter:         ownerFilter(ownerID),
		Limit:          &limitU,
		WithPayload:    qd.NewWithPayload(true),
		WithVectors:    qd.NewWithVectors(true),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "query points", goerr.V("owner", ownerID))
	}

	out := make([]memory.SearchResult, 0, len(points))
	for _, p := range points {
		rec := recordFromPayload(p.Id.GetUuid(), p.Payload, p.Vectors.GetVector().GetData())
		out = append(out, memory.SearchResult{Record: *rec, Similarity: p.Score})
	}
	return out, nil
}

// Get retrieves a record by ID within the owner's partition. The point
// is fetched by ID first so a cross-owner access can be distinguished
// from a missing record.
func (s *Store) Get(ctx context.Context, ownerID, recordID string) (*memory.Record, error) {
	points, err := s.client.Get(ctx, &qd.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qd.PointId{qd.NewID(recordID)},
		WithPayload:    qd.NewWithPayload(true),
		WithVectors:    qd.NewWithVectors(true),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "get point", goerr.V("record", recordID))
	}
	if len(points) == 0 {
		return nil, goerr.Wrap(memory.ErrNotFound, "get record", goerr.V("record", recordID))
	}

	p := points[0]
	rec := recordFromPayload(p.Id.GetUuid(), p.Payload, p.Vectors.GetVector().GetData())
	if rec.OwnerID != ownerID {
		return nil, goerr.Wrap(memory.ErrScopeViolation, "get record",
			goerr.V("owner", ownerID), goerr.V("record", recordID))
	}
	return rec, nil
}

// List returns all records for the owner via scroll pagination.
func (s *Store) List(ctx context.Context, ownerID string) ([]memory.Record, error) {
	var out []memory.Record
	var offset *qd.PointId
	pageSize := uint32(256)

	for {
		points, err := s.client.Scroll(ctx, &qd.ScrollPoints{
			CollectionName: s.collection,
			Filter:         ownerFilter(ownerID),
			Limit:          &pageSize,
			Offset:         offset,
			WithPayload:    qd.NewWithPayload(true),
			WithVectors:    qd.NewWithVectors(true),
		})
		if err != nil {
			return nil, goerr.Wrap(err, "scroll points", goerr.V("owner", ownerID))
		}
		if len(points) == 0 {
			return out, nil
		}
		for _, p := range points {
			rec := recordFromPayload(p.Id.GetUuid(), p.Payload, p.Vectors.GetVector().GetData())
			out = append(out, *rec)
		}
		if len(points) < int(pageSize) {
			return out, nil
		}
		offset = points[len(points)-1].Id
	}
}

// Delete removes a single record. The delete selector matches both the
// ID and the owner filter, so a cross-owner ID never deletes anything.
func (s *Store) Delete(ctx context.Context, ownerID, recordID string) error {
	if _, err := s.Get(ctx, ownerID, recordID); err != nil {
		return err
	}

	filter := ownerFilter(ownerID)
	filter.Must = append(filter.Must, qd.NewHasID(qd.NewID(recordID)))

	wait := true
	_, err := s.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qd.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return goerr.Wrap(err, "delete point", goerr.V("record", recordID))
	}
	return nil
}

// Clear removes every point belonging to the owner.
func (s *Store) Clear(ctx context.Context, ownerID string) error {
	wait := true
	_, err := s.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qd.NewPointsSelectorFilter(ownerFilter(ownerID)),
	})
	if err != nil {
		return goerr.Wrap(err, "clear owner points", goerr.V("owner", ownerID))
	}
	return nil
}

// Close shuts down the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func ownerFilter(ownerID string) *qd.Filter {
	return &qd.Filter{
		Must: []*qd.Condition{qd.NewMatch("owner_id", ownerID)},
	}
}

func recordFromPayload(id string, payload map[string]*qd.Value, embedding []float32) *memory.Record {
	rec := &memory.Record{
		ID:        id,
		OwnerID:   payload["owner_id"].GetStringValue(),
		Text:      payload["text"].GetStringValue(),
		Embedding: embedding,
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, payload["created_at"].GetStringValue())
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, payload["updated_at"].GetStringValue())

	for k, v := range payload {
		if len(k) > 5 && k[:5] == "meta_" {
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]string)
			}
			rec.Metadata[k[5:]] = v.GetStringValue()
		}
	}
	return rec
}
