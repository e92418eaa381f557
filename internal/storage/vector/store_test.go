package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/pkg/types"
)

// newTestStore creates a vector store backed by a temp file and the
// deterministic local embedder.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.db")
	store, err := New(context.Background(), path, llm.NewLocalEmbedder())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testItem(id, content, topic string, tags ...string) *types.MemoryItem {
	now := types.Timestamp()
	return &types.MemoryItem{
		ID:        id,
		Content:   content,
		Topic:     topic,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// TestInitializeCreatesCollections verifies that a fresh store reports all
// three collections with zero counts.
func TestInitializeCreatesCollections(t *testing.T) {
	store := newTestStore(t)

	status, err := store.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	for _, name := range []string{memoriesCollection, summariesCollection, topicsCollection} {
		count, ok := status.Collections[name]
		if !ok {
			t.Errorf("collection %s missing from status", name)
		}
		if count != 0 {
			t.Errorf("collection %s count: got %d, want 0", name, count)
		}
	}
	if status.Path == "" {
		t.Error("status Path is empty")
	}
}

// TestUpsertAndSearchMemories verifies that stored memories are found by a
// similar query and that closer content scores higher.
func TestUpsertAndSearchMemories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertMemory(ctx, testItem("mem-1", "goroutines and channels in golang", "golang")); err != nil {
		t.Fatalf("UpsertMemory(mem-1) failed: %v", err)
	}
	if err := store.UpsertMemory(ctx, testItem("mem-2", "pandas dataframes numpy arrays", "python")); err != nil {
		t.Fatalf("UpsertMemory(mem-2) failed: %v", err)
	}

	results, err := store.SearchMemories(ctx, "golang goroutines channels", 2, "")
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("SearchMemories() returned no results")
	}
	if results[0].ID != "mem-1" {
		t.Errorf("top result: got %s, want mem-1", results[0].ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not ordered by score: %v", results)
		}
	}
}

// TestSearchMemoriesTopicFilter verifies that the topic filter restricts
// results to one topic.
func TestSearchMemoriesTopicFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertMemory(ctx, testItem("mem-1", "sorting algorithms quicksort", "golang")); err != nil {
		t.Fatalf("UpsertMemory(mem-1) failed: %v", err)
	}
	if err := store.UpsertMemory(ctx, testItem("mem-2", "sorting algorithms quicksort", "python")); err != nil {
		t.Fatalf("UpsertMemory(mem-2) failed: %v", err)
	}

	results, err := store.SearchMemories(ctx, "sorting algorithms", 10, "python")
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("filtered results: got %d, want 1", len(results))
	}
	if results[0].ID != "mem-2" {
		t.Errorf("filtered result: got %s, want mem-2", results[0].ID)
	}
}

// TestSearchTieBreaksOnID verifies that identical scores come back in id
// order.
func TestSearchTieBreaksOnID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Identical content embeds to identical vectors, so both hits tie.
	if err := store.UpsertMemory(ctx, testItem("mem-b", "exactly the same words", "t")); err != nil {
		t.Fatalf("UpsertMemory(mem-b) failed: %v", err)
	}
	if err := store.UpsertMemory(ctx, testItem("mem-a", "exactly the same words", "t")); err != nil {
		t.Fatalf("UpsertMemory(mem-a) failed: %v", err)
	}

	results, err := store.SearchMemories(ctx, "exactly the same words", 2, "")
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results): got %d, want 2", len(results))
	}
	if results[0].ID != "mem-a" || results[1].ID != "mem-b" {
		t.Errorf("tie order: got [%s %s], want [mem-a mem-b]", results[0].ID, results[1].ID)
	}
}

// TestSearchMemoriesNonPositiveTopK verifies topK <= 0 yields no results and
// no error.
func TestSearchMemoriesNonPositiveTopK(t *testing.T) {
	store := newTestStore(t)

	results, err := store.SearchMemories(context.Background(), "anything", 0, "")
	if err != nil {
		t.Fatalf("SearchMemories(topK=0) failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results: got %d, want 0", len(results))
	}
}

// TestUpdateMemoryMetadataOnly verifies an update without a content change
// rewrites the metadata while keeping the record findable by the original
// content.
func TestUpdateMemoryMetadataOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := testItem("mem-1", "kubernetes pod scheduling", "infra")
	if err := store.UpsertMemory(ctx, item); err != nil {
		t.Fatalf("UpsertMemory() failed: %v", err)
	}

	item.Topic = "platform"
	if err := store.UpdateMemory(ctx, item, false); err != nil {
		t.Fatalf("UpdateMemory() failed: %v", err)
	}

	// The record now lives under the new topic.
	results, err := store.SearchMemories(ctx, "kubernetes pod scheduling", 5, "platform")
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "mem-1" {
		t.Errorf("search under new topic: got %v, want [mem-1]", results)
	}

	// And no longer matches the old topic filter.
	results, err = store.SearchMemories(ctx, "kubernetes pod scheduling", 5, "infra")
	if err != nil {
		t.Fatalf("SearchMemories() failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("search under old topic: got %v, want none", results)
	}
}

// TestUpdateMemoryMissingFallsBackToUpsert verifies that updating an id the
// index has never seen creates the record.
func TestUpdateMemoryMissingFallsBackToUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := testItem("mem-1", "terraform state management", "infra")
	if err := store.UpdateMemory(ctx, item, false); err != nil {
		t.Fatalf("UpdateMemory(missing) failed: %v", err)
	}

	ids, err := store.ListMemoryIDs(ctx)
	if err != nil {
		t.Fatalf("ListMemoryIDs() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "mem-1" {
		t.Errorf("ids after fallback upsert: got %v, want [mem-1]", ids)
	}
}

// TestDeleteMemoryIsBestEffort verifies deletes remove records and tolerate
// unknown ids.
func TestDeleteMemoryIsBestEffort(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertMemory(ctx, testItem("mem-1", "content to remove", "t")); err != nil {
		t.Fatalf("UpsertMemory() failed: %v", err)
	}
	if err := store.DeleteMemory(ctx, "mem-1"); err != nil {
		t.Fatalf("DeleteMemory() failed: %v", err)
	}

	ids, err := store.ListMemoryIDs(ctx)
	if err != nil {
		t.Fatalf("ListMemoryIDs() failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids after delete: got %v, want none", ids)
	}

	// Deleting the same id again is not an error.
	if err := store.DeleteMemory(ctx, "mem-1"); err != nil {
		t.Errorf("second DeleteMemory: got %v, want nil", err)
	}
}

// TestUpsertAndSearchSummaries verifies summary records carry their topic
// for filtered search.
func TestUpsertAndSearchSummaries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	summary := &types.Summary{
		ID:          "sum-1",
		MemoryID:    "mem-1",
		SummaryType: types.SummaryTypeDefault,
		SummaryText: "redis caching strategies explained briefly",
		CreatedAt:   types.Timestamp(),
		UpdatedAt:   types.Timestamp(),
	}
	if err := store.UpsertSummary(ctx, summary, "infra"); err != nil {
		t.Fatalf("UpsertSummary() failed: %v", err)
	}

	results, err := store.SearchSummaries(ctx, "redis caching", 5, "")
	if err != nil {
		t.Fatalf("SearchSummaries() failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "sum-1" {
		t.Fatalf("SearchSummaries: got %v, want [sum-1]", results)
	}

	filtered, err := store.SearchSummaries(ctx, "redis caching", 5, "other-topic")
	if err != nil {
		t.Fatalf("SearchSummaries(filtered) failed: %v", err)
	}
	if len(filtered) != 0 {
		t.Errorf("SearchSummaries under wrong topic: got %v, want none", filtered)
	}

	ids, err := store.ListSummaryIDs(ctx)
	if err != nil {
		t.Fatalf("ListSummaryIDs() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "sum-1" {
		t.Errorf("ListSummaryIDs: got %v, want [sum-1]", ids)
	}
}

// TestUpsertTopicDocument verifies the synthesized topic text and the topic
// collection bookkeeping.
func TestUpsertTopicDocument(t *testing.T) {
	if got, want := topicDocument("golang", []string{"concurrency", "runtime"}),
		"Topic golang containing information about concurrency, runtime"; got != want {
		t.Errorf("topicDocument with tags: got %q, want %q", got, want)
	}
	if got, want := topicDocument("golang", nil),
		"Topic golang containing information about golang"; got != want {
		t.Errorf("topicDocument without tags: got %q, want %q", got, want)
	}

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertTopic(ctx, "golang", []string{"concurrency"}); err != nil {
		t.Fatalf("UpsertTopic() failed: %v", err)
	}

	status, err := store.Status(ctx)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if status.Collections[topicsCollection] != 1 {
		t.Errorf("topics count: got %d, want 1", status.Collections[topicsCollection])
	}

	if err := store.DeleteTopic(ctx, "golang"); err != nil {
		t.Fatalf("DeleteTopic() failed: %v", err)
	}
	if err := store.DeleteTopic(ctx, "golang"); err != nil {
		t.Errorf("second DeleteTopic: got %v, want nil", err)
	}
}

// TestReset verifies all collections are emptied and the store stays usable.
func TestReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertMemory(ctx, testItem("mem-1", "something stored", "t")); err != nil {
		t.Fatalf("UpsertMemory() failed: %v", err)
	}
	if err := store.UpsertTopic(ctx, "t", nil); err != nil {
		t.Fatalf("UpsertTopic() failed: %v", err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}

	status, err := store.Status(ctx)
	if err != nil {
		t.Fatalf("Status() after reset failed: %v", err)
	}
	for name, count := range status.Collections {
		if count != 0 {
			t.Errorf("collection %s after reset: got %d, want 0", name, count)
		}
	}

	if err := store.UpsertMemory(ctx, testItem("mem-2", "fresh content", "t")); err != nil {
		t.Errorf("UpsertMemory after reset failed: %v", err)
	}
}
