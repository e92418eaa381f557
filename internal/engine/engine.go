// Package engine implements the hybrid memory engine: the coordinator that
// keeps the relational store (canonical rows) and the vector store (derived
// embeddings) coherent while serving the public memory operations.
//
// Every operation returns a response envelope rather than an error; failures
// are classified into envelope kinds so the RPC boundary never sees a Go
// error. Partial dual-write failures degrade to warnings on a successful
// envelope and are repairable through Reconcile.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/engram/internal/backup"
	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Engine coordinates the two storage halves, the summarizer, and the backup
// manager behind the public memory operations.
type Engine struct {
	relational storage.RelationalStore
	vectors    storage.VectorStore
	summarizer *llm.Summarizer
	backups    *backup.Manager
	cfg        *config.Config
}

// New creates an engine over the given stores. The summarizer may be nil
// (summarization degrades, everything else works) and the backup manager
// may be nil (no scheduled snapshots).
func New(relational storage.RelationalStore, vectors storage.VectorStore, summarizer *llm.Summarizer, backups *backup.Manager, cfg *config.Config) (*Engine, error) {
	if relational == nil {
		return nil, fmt.Errorf("relational store is required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if summarizer == nil {
		summarizer = llm.NewSummarizer(nil)
	}

	return &Engine{
		relational: relational,
		vectors:    vectors,
		summarizer: summarizer,
		backups:    backups,
		cfg:        cfg,
	}, nil
}

// Initialize prepares both stores. With reset it wipes all stored data and
// recreates empty schemas and collections.
func (e *Engine) Initialize(ctx context.Context, reset bool) types.Response {
	if reset {
		if err := e.relational.Reset(ctx); err != nil {
			return storeError("Failed to reset relational store", err)
		}
		if err := e.vectors.Reset(ctx); err != nil {
			return storeError("Failed to reset vector store", err)
		}
	} else {
		if err := e.relational.Initialize(ctx); err != nil {
			return storeError("Failed to initialize relational store", err)
		}
		if err := e.vectors.Initialize(ctx); err != nil {
			return storeError("Failed to initialize vector store", err)
		}
	}

	return types.OK("Memory system initialized successfully", map[string]interface{}{
		"reset":   reset,
		"db_path": e.cfg.Storage.DBPath,
	})
}

// ListTopics returns one element per topic, most recently updated first.
// An empty store yields a one-element list holding an ok envelope, the same
// convention retrieve uses.
func (e *Engine) ListTopics(ctx context.Context) []types.Response {
	topics, err := e.relational.ListTopics(ctx)
	if err != nil {
		return []types.Response{storeError("Failed to list topics", err)}
	}
	if len(topics) == 0 {
		return []types.Response{types.OK("No topics found", nil)}
	}

	results := make([]types.Response, 0, len(topics))
	for _, topic := range topics {
		result := types.Response{
			"name":       topic.Name,
			"item_count": topic.ItemCount,
			"created_at": topic.CreatedAt,
			"updated_at": topic.UpdatedAt,
		}
		if topic.Description != "" {
			result["description"] = topic.Description
		}
		results = append(results, result)
	}
	return results
}

// Status merges figures from both stores with the data path, wall-clock
// time, and the summarizer's availability and breaker state.
func (e *Engine) Status(ctx context.Context) types.Response {
	rel, err := e.relational.Status(ctx)
	if err != nil {
		return storeError("Failed to read relational status", err)
	}
	vec, err := e.vectors.Status(ctx)
	if err != nil {
		return storeError("Failed to read vector status", err)
	}

	summarizer := map[string]interface{}{
		"available": e.summarizer.Available(),
	}
	if model := e.summarizer.Model(); model != "" {
		summarizer["model"] = model
	}
	if state := e.summarizer.State(); state != "" {
		summarizer["breaker_state"] = state
	}

	stats := map[string]interface{}{
		"total_memories":     rel.TotalMemories,
		"total_topics":       rel.TotalTopics,
		"top_topics":         rel.TopTopics,
		"latest_item_date":   rel.LatestItemDate,
		"vector_collections": vec.Collections,
		"vector_path":        vec.Path,
		"storage_engine":     e.cfg.Storage.Engine,
		"db_path":            e.cfg.Storage.DBPath,
		"system_time":        types.Timestamp(),
		"summarizer":         summarizer,
	}

	return types.OK("Memory status retrieved successfully", map[string]interface{}{
		"stats": stats,
	})
}

// Close releases both stores.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.relational.Close(); err != nil {
		firstErr = err
	}
	if err := e.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// tick notifies the backup manager that a write-path operation succeeded.
func (e *Engine) tick(ctx context.Context) {
	if e.backups != nil {
		e.backups.Tick(ctx)
	}
}

// errorKind classifies a storage error into an envelope error kind.
func errorKind(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return types.KindNotFound
	case errors.Is(err, storage.ErrInvalidInput):
		return types.KindInvalidArgument
	case errors.Is(err, storage.ErrConflict):
		return types.KindConflict
	default:
		return types.KindStoreIO
	}
}

// storeError builds an error envelope for a failed store interaction.
func storeError(message string, err error) types.Response {
	return types.Error(message, errorKind(err), map[string]interface{}{
		"cause": err.Error(),
	})
}

// invalidArgument builds an invalid_argument envelope.
func invalidArgument(message string) types.Response {
	return types.Error(message, types.KindInvalidArgument, nil)
}

// summarizerError builds an envelope for a failed summarization call.
// Malformed requests are the caller's fault; everything else means the
// capability is unavailable right now.
func summarizerError(err error) types.Response {
	kind := types.KindDependencyUnavailable
	if errors.Is(err, llm.ErrInvalidRequest) {
		kind = types.KindInvalidArgument
	}
	return types.Error("Failed to generate summary", kind, map[string]interface{}{
		"cause": err.Error(),
	})
}
