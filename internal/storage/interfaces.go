// Package storage defines the storage contracts for the Engram memory
// system. The hybrid engine coordinates two halves: a relational store
// holding the canonical records (topics, memory items, summaries) and a
// vector store mirroring them as embeddings for semantic search.
//
// The interfaces are small and backend-agnostic; the sqlite and vector
// subpackages provide the embedded implementations, and the postgres
// subpackage provides a single server-backed implementation of both.
package storage

import (
	"context"

	"github.com/scrypster/engram/pkg/types"
)

// RelationalStore is the canonical system of record for memory items,
// their topics, and their summaries. Multi-row mutations (topic counting,
// cascading deletes) happen inside a single transaction.
type RelationalStore interface {
	// Initialize creates the schema if it does not exist yet.
	Initialize(ctx context.Context) error

	// Reset drops all stored data and recreates an empty schema.
	Reset(ctx context.Context) error

	// AddMemory inserts a new memory item. The owning topic is created with
	// a count of one, or its count is incremented, in the same transaction.
	AddMemory(ctx context.Context, item *types.MemoryItem) error

	// GetMemory retrieves a memory item by id.
	// Returns ErrNotFound if the memory doesn't exist.
	GetMemory(ctx context.Context, id string) (*types.MemoryItem, error)

	// UpdateMemory applies a partial update to a memory item, bumping its
	// version and updated_at. A topic change moves the item between topic
	// counts (removing the old topic at zero) in the same transaction.
	// Returns the updated item, or ErrNotFound if the memory doesn't exist.
	UpdateMemory(ctx context.Context, id string, upd MemoryUpdate) (*types.MemoryItem, error)

	// DeleteMemory removes a memory item. Its summaries are removed by
	// cascade; the owning topic's count decrements and the topic row is
	// removed when it reaches zero.
	// Returns ErrNotFound if the memory doesn't exist.
	DeleteMemory(ctx context.Context, id string) error

	// AddSummary inserts a summary for an existing memory.
	// Returns ErrConflict when the memory already has a summary of the
	// same type, and ErrNotFound when the memory doesn't exist.
	AddSummary(ctx context.Context, s *types.Summary) error

	// GetSummary retrieves a summary by id.
	// Returns ErrNotFound if the summary doesn't exist.
	GetSummary(ctx context.Context, id string) (*types.Summary, error)

	// GetSummaryByType retrieves the summary of a given type for a memory.
	// Returns ErrNotFound if no such summary exists.
	GetSummaryByType(ctx context.Context, memoryID, summaryType string) (*types.Summary, error)

	// UpdateSummaryText replaces the text of an existing summary in place,
	// keeping its id and bumping updated_at. Returns the updated summary,
	// or ErrNotFound if the summary doesn't exist.
	UpdateSummaryText(ctx context.Context, id, text string) (*types.Summary, error)

	// ListSummaries returns all summaries belonging to a memory, ordered
	// by summary type. An unknown memory id yields an empty slice.
	ListSummaries(ctx context.Context, memoryID string) ([]*types.Summary, error)

	// GetTopic retrieves a topic by name.
	// Returns ErrNotFound if the topic doesn't exist.
	GetTopic(ctx context.Context, name string) (*types.Topic, error)

	// ListTopics returns all topics ordered by most recently updated first.
	ListTopics(ctx context.Context) ([]*types.Topic, error)

	// ListMemoryIDs returns the ids of all stored memory items.
	ListMemoryIDs(ctx context.Context) ([]string, error)

	// ListSummaryIDs returns the ids of all stored summaries.
	ListSummaryIDs(ctx context.Context) ([]string, error)

	// Status reports aggregate figures about the stored data.
	Status(ctx context.Context) (*RelationalStatus, error)

	// Close releases any resources held by the store.
	Close() error
}

// VectorStore mirrors memory items, summaries, and topics as embeddings.
// Deletes are best-effort: removing an id that is not present is not an
// error, so the engine can repair drift without special cases.
type VectorStore interface {
	// Initialize opens the index and creates missing collections.
	Initialize(ctx context.Context) error

	// Reset drops and recreates all collections.
	Reset(ctx context.Context) error

	// UpsertMemory embeds the item's content and stores it with the item's
	// metadata, replacing any previous record under the same id.
	UpsertMemory(ctx context.Context, item *types.MemoryItem) error

	// UpdateMemory refreshes the stored record for an existing item.
	// When contentChanged is false the existing embedding is kept and only
	// content text and metadata are rewritten; a missing record falls back
	// to a full upsert.
	UpdateMemory(ctx context.Context, item *types.MemoryItem, contentChanged bool) error

	// DeleteMemory removes the embedding for a memory id, if present.
	DeleteMemory(ctx context.Context, id string) error

	// SearchMemories returns the ids of the topK memories closest to the
	// query, optionally restricted to one topic. Results are ordered by
	// score descending with ties broken by id.
	SearchMemories(ctx context.Context, query string, topK int, topic string) ([]SearchResult, error)

	// UpsertSummary embeds the summary text and stores it tagged with its
	// memory id, summary type, and owning topic.
	UpsertSummary(ctx context.Context, s *types.Summary, topic string) error

	// DeleteSummary removes the embedding for a summary id, if present.
	DeleteSummary(ctx context.Context, id string) error

	// SearchSummaries returns the ids of the topK summaries closest to the
	// query, optionally restricted to one topic. Results are ordered by
	// score descending with ties broken by id.
	SearchSummaries(ctx context.Context, query string, topK int, topic string) ([]SearchResult, error)

	// UpsertTopic stores a synthesized description of the topic so topics
	// themselves are findable by similarity.
	UpsertTopic(ctx context.Context, name string, tags []string) error

	// DeleteTopic removes the embedding for a topic name, if present.
	DeleteTopic(ctx context.Context, name string) error

	// ListMemoryIDs returns all ids in the memory collection.
	ListMemoryIDs(ctx context.Context) ([]string, error)

	// ListSummaryIDs returns all ids in the summary collection.
	ListSummaryIDs(ctx context.Context) ([]string, error)

	// Status reports per-collection embedding counts and the index path.
	Status(ctx context.Context) (*VectorStatus, error)

	// Close releases any resources held by the store.
	Close() error
}
