// Package memory implements the retrieval-and-consolidation pipeline
// behind the agent's long-term, per-owner memory.
//
// Conversation exchanges are distilled into short factual statements,
// deduplicated against what the owner already has, and persisted as
// owner-scoped records in a vector index plus an optional relationship
// graph. Later turns retrieve the closest records as generation context.
//
// Architecture:
//   - Store: vector index backend (chromem-go embedded, Qdrant remote)
//   - GraphStore: optional triple store (Neo4j)
//   - Embedder: text-to-vector conversion (Gemini API, cached, mock)
//   - Extractor: exchange-to-facts distillation (LLM-backed or stubbed)
//   - Manager: orchestrates retrieval, consolidation, and reset
//
// Consolidation policy: a fact whose embedding lands at or above the
// configured merge threshold against an existing record supersedes that
// record in place, keeping the ID stable and bumping UpdatedAt. This one
// rule gives both idempotent merge (re-stating a fact never duplicates
// it) and supersession (a contradicting restatement overwrites the stale
// truth). Everything below the threshold becomes a new record.
//
// Owner scoping is absolute: every store and graph operation carries an
// owner ID, and no call can read or write another owner's data. Mutation
// is serialized per owner; retrieval is lock-free.
package memory
