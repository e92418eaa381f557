package engine

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// summarizeCandidates caps how many memories feed a query- or topic-scoped
// summary.
const summarizeCandidates = 10

// SummarizeRequest selects what to summarize and how. Exactly one of
// MemoryID, Query, or Topic must be set.
type SummarizeRequest struct {
	MemoryID    string
	Query       string
	Topic       string
	SummaryType string // abstractive, extractive, or query_focused
	Length      string // short, medium, or detailed
}

// Summarize produces an on-demand summary of one memory, the best matches
// for a query, or a whole topic. The result is returned, never persisted;
// callers that want it stored pass it back through Store or Update.
func (e *Engine) Summarize(ctx context.Context, req SummarizeRequest) types.Response {
	selectors := 0
	for _, sel := range []string{req.MemoryID, req.Query, req.Topic} {
		if sel != "" {
			selectors++
		}
	}
	if selectors != 1 {
		return invalidArgument("Exactly one of memory_id, query, or topic must be provided")
	}

	kind := req.SummaryType
	if kind == "" {
		kind = "abstractive"
	}
	if !types.IsValidSummaryKind(kind) {
		return invalidArgument("Summary type must be one of abstractive, extractive, query_focused")
	}
	length := req.Length
	if length == "" {
		length = "medium"
	}
	if !types.IsValidSummaryLength(length) {
		return invalidArgument("Length must be one of short, medium, detailed")
	}
	if kind == "query_focused" && req.Query == "" {
		return invalidArgument("Query-focused summaries require the query selector")
	}

	var (
		text string
		err  error
	)
	switch {
	case req.MemoryID != "":
		item, gerr := e.relational.GetMemory(ctx, req.MemoryID)
		if gerr != nil {
			return storeError("Failed to generate summary", gerr)
		}
		text = item.Content

	case req.Topic != "":
		if _, gerr := e.relational.GetTopic(ctx, req.Topic); gerr != nil {
			return storeError("Failed to generate summary", gerr)
		}
		text, err = e.collectCandidates(ctx, req.Topic, req.Topic)

	default:
		text, err = e.collectCandidates(ctx, req.Query, "")
	}
	if err != nil {
		return storeError("Failed to generate summary", err)
	}
	if text == "" {
		return types.Error("No memories found to summarize", types.KindNotFound, nil)
	}

	// The query steers the summarizer only for query_focused summaries;
	// for other kinds it has already done its job selecting candidates.
	query := ""
	if kind == "query_focused" {
		query = req.Query
	}
	summary, err := e.summarizer.Summarize(ctx, text, kind, length, query)
	if err != nil {
		return summarizerError(err)
	}

	data := map[string]interface{}{
		"summary":      summary,
		"summary_type": kind,
		"length":       length,
	}
	switch {
	case req.MemoryID != "":
		data["memory_id"] = req.MemoryID
	case req.Topic != "":
		data["topic"] = req.Topic
	default:
		data["query"] = req.Query
	}
	return types.OK("Summary generated successfully", data)
}

// collectCandidates gathers the contents of the memories closest to the
// query, optionally restricted to a topic, joined into one block of text.
// Drifted hits are skipped the same way retrieve skips them.
func (e *Engine) collectCandidates(ctx context.Context, query, topic string) (string, error) {
	hits, err := e.vectors.SearchMemories(ctx, query, summarizeCandidates, topic)
	if err != nil {
		return "", err
	}

	contents := make([]string, 0, len(hits))
	for _, hit := range hits {
		item, err := e.relational.GetMemory(ctx, hit.ID)
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("engine: skipping drifted memory embedding %s", hit.ID)
			continue
		}
		if err != nil {
			return "", err
		}
		contents = append(contents, item.Content)
	}
	return strings.Join(contents, "\n\n"), nil
}
