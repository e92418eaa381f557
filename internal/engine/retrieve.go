package engine

import (
	"context"
	"errors"
	"log"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Return types accepted by Retrieve.
const (
	ReturnFullText = "full_text"
	ReturnSummary  = "summary"
	ReturnBoth     = "both"
)

// Retrieve runs a summary-first semantic search: the query is matched
// against summary embeddings, and hits are hydrated from the relational
// store. Ids whose relational rows have drifted away are skipped rather
// than surfaced half-shaped.
//
// Hits are returned as plain result objects. An empty result set returns a
// one-element list holding an ok envelope instead, so callers always get a
// non-empty list.
func (e *Engine) Retrieve(ctx context.Context, query string, maxResults int, topic, returnType string) []types.Response {
	if query == "" {
		return []types.Response{invalidArgument("Query must not be empty")}
	}
	if returnType == "" {
		returnType = ReturnFullText
	}
	switch returnType {
	case ReturnFullText, ReturnSummary, ReturnBoth:
	default:
		return []types.Response{invalidArgument("Return type must be one of full_text, summary, both")}
	}
	if maxResults <= 0 {
		return []types.Response{types.OK("No matching memories found", nil)}
	}

	hits, err := e.vectors.SearchSummaries(ctx, query, maxResults, topic)
	if err != nil {
		return []types.Response{storeError("Failed to retrieve memories", err)}
	}

	results := make([]types.Response, 0, len(hits))
	for _, hit := range hits {
		s, err := e.relational.GetSummary(ctx, hit.ID)
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("engine: skipping drifted summary embedding %s", hit.ID)
			continue
		}
		if err != nil {
			return []types.Response{storeError("Failed to retrieve memories", err)}
		}
		item, err := e.relational.GetMemory(ctx, s.MemoryID)
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("engine: skipping summary %s of drifted memory %s", s.ID, s.MemoryID)
			continue
		}
		if err != nil {
			return []types.Response{storeError("Failed to retrieve memories", err)}
		}
		results = append(results, shapeResult(returnType, item, s))
	}

	if len(results) == 0 {
		return []types.Response{types.OK("No matching memories found", nil)}
	}
	return results
}

// shapeResult projects a hydrated hit into the requested shape. The id is
// always the memory id, regardless of shape.
func shapeResult(returnType string, item *types.MemoryItem, s *types.Summary) types.Response {
	result := types.Response{
		"id":    item.ID,
		"topic": item.Topic,
		"tags":  item.Tags,
	}
	if returnType == ReturnFullText || returnType == ReturnBoth {
		result["content"] = item.Content
		result["created_at"] = item.CreatedAt
		result["updated_at"] = item.UpdatedAt
		result["version"] = item.Version
	}
	if returnType == ReturnSummary || returnType == ReturnBoth {
		result["summary_text"] = s.SummaryText
		result["summary_type"] = s.SummaryType
	}
	return result
}
