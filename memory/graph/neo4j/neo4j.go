// Package neo4j implements the optional GraphStore interface on Neo4j.
//
// Entities are nodes labeled Entity, keyed by (name, owner_id); triples
// become RELATES edges keyed by (owner, subject, predicate) so that a
// repeated extraction merges with the existing edge instead of
// duplicating it.
package neo4j

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/evermind-ai/evermind/memory"
)

// Config holds Neo4j connection settings.
type Config struct {
	URI      string
	Username string
	Password string
}

// Graph is a Neo4j-backed relationship graph.
type Graph struct {
	driver neo4j.DriverWithContext
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Graph, error) {
	if cfg.URI == "" {
		return nil, goerr.New("neo4j uri is required")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, goerr.Wrap(err, "create neo4j driver", goerr.V("uri", cfg.URI))
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, goerr.Wrap(err, "verify neo4j connectivity", goerr.V("uri", cfg.URI))
	}
	return &Graph{driver: driver}, nil
}

// UpsertEdge merges the triple into the owner's subgraph. A second
// upsert with the same (owner, subject, predicate) updates the object
// in place.
func (g *Graph) UpsertEdge(ctx context.Context, edge memory.Edge) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		const cypher = `
			MERGE (s:Entity {name: $subject, owner_id: $owner})
			MERGE (o:Entity {name: $object, owner_id: $owner})
			MERGE (s)-[r:RELATES {predicate: $predicate}]->(o)
			ON CREATE SET r.created_at = datetime()
			SET r.updated_at = datetime()`
		return tx.Run(ctx, cypher, map[string]any{
			"owner":     edge.OwnerID,
			"subject":   edge.Subject,
			"predicate": edge.Predicate,
			"object":    edge.Object,
		})
	})
	if err != nil {
		return goerr.Wrap(err, "upsert edge",
			goerr.V("owner", edge.OwnerID), goerr.V("subject", edge.Subject))
	}
	return nil
}

// Edges returns all triples belonging to the owner.
func (g *Graph) Edges(ctx context.Context, ownerID string) ([]memory.Edge, error) {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		const cypher = `
			MATCH (s:Entity {owner_id: $owner})-[r:RELATES]->(o:Entity {owner_id: $owner})
			RETURN s.name, r.predicate, o.name`
		res, err := tx.Run(ctx, cypher, map[string]any{"owner": ownerID})
		if err != nil {
			return nil, err
		}

		var edges []memory.Edge
		for res.Next(ctx) {
			values := res.Record().Values
			if len(values) < 3 {
				continue
			}
			subject, _ := values[0].(string)
			predicate, _ := values[1].(string)
			object, _ := values[2].(string)
			edges = append(edges, memory.Edge{
				Triple:  memory.Triple{Subject: subject, Predicate: predicate, Object: object},
				OwnerID: ownerID,
			})
		}
		return edges, res.Err()
	})
	if err != nil {
		return nil, goerr.Wrap(err, "list edges", goerr.V("owner", ownerID))
	}
	return result.([]memory.Edge), nil
}

// Clear detaches and deletes every entity belonging to the owner.
func (g *Graph) Clear(ctx context.Context, ownerID string) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `MATCH (n:Entity {owner_id: $owner}) DETACH DELETE n`,
			map[string]any{"owner": ownerID})
	})
	if err != nil {
		return goerr.Wrap(err, "clear owner graph", goerr.V("owner", ownerID))
	}
	return nil
}

// Close shuts down the driver.
func (g *Graph) Close() error {
	return g.driver.Close(context.Background())
}
