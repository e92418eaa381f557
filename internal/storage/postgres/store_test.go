package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/internal/storage/postgres"
	"github.com/scrypster/engram/pkg/types"
)

// postgresTestDSN returns the DSN for the test database.
// If POSTGRES_TEST_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore connects to the test database with a deterministic local
// embedder, truncates every table, and registers cleanup.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := postgresTestDSN(t)

	store, err := postgres.New(dsn, llm.NewLocalEmbedder())
	require.NoError(t, err, "New should succeed")

	require.NoError(t, store.TruncateForTest(context.Background()), "truncate tables")

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// newTestItem builds a minimal valid memory item.
func newTestItem(id, content, topic string, tags ...string) *types.MemoryItem {
	return &types.MemoryItem{
		ID:      id,
		Content: content,
		Topic:   topic,
		Tags:    tags,
	}
}

func strPtr(s string) *string { return &s }

// ---- Relational store tests ----

func TestAddAndGetMemory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := newTestItem("mem-1", "The deploy pipeline runs on merge to main.", "ci", "deploy")
	require.NoError(t, store.AddMemory(ctx, item))

	got, err := store.GetMemory(ctx, "mem-1")
	require.NoError(t, err)
	assert.Equal(t, item.Content, got.Content)
	assert.Equal(t, "ci", got.Topic)
	assert.Equal(t, []string{"deploy"}, got.Tags)
	assert.Equal(t, 1, got.Version)
	assert.NotEmpty(t, got.CreatedAt)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestAddMemoryValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name string
		item *types.MemoryItem
	}{
		{"nil item", nil},
		{"missing id", newTestItem("", "content", "topic")},
		{"missing content", newTestItem("mem-1", "", "topic")},
		{"missing topic", newTestItem("mem-1", "content", "")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, store.AddMemory(ctx, tc.item), storage.ErrInvalidInput)
		})
	}
}

func TestAddMemoryDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-1", "first", "notes")))

	err := store.AddMemory(ctx, newTestItem("mem-1", "second", "notes"))
	assert.ErrorIs(t, err, storage.ErrConflict)

	// The failed insert must not leak into the topic counter.
	topic, err := store.GetTopic(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 1, topic.ItemCount)
}

func TestUpdateMemoryContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-1", "old content", "notes")))

	updated, err := store.UpdateMemory(ctx, "mem-1", storage.MemoryUpdate{Content: strPtr("new content")})
	require.NoError(t, err)
	assert.Equal(t, "new content", updated.Content)
	assert.Equal(t, 2, updated.Version)

	stored, err := store.GetMemory(ctx, "mem-1")
	require.NoError(t, err)
	assert.Equal(t, updated, stored)
}

func TestUpdateMemoryTopicMove(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-1", "payload", "old-topic")))

	updated, err := store.UpdateMemory(ctx, "mem-1", storage.MemoryUpdate{Topic: strPtr("new-topic")})
	require.NoError(t, err)
	assert.Equal(t, "new-topic", updated.Topic)

	// The vacated topic is removed once its count reaches zero.
	_, err = store.GetTopic(ctx, "old-topic")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	topic, err := store.GetTopic(ctx, "new-topic")
	require.NoError(t, err)
	assert.Equal(t, 1, topic.ItemCount)
}

func TestUpdateMemoryNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UpdateMemory(context.Background(), "missing", storage.MemoryUpdate{Content: strPtr("x")})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateMemoryEmptyUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-1", "payload", "notes")))

	_, err := store.UpdateMemory(ctx, "mem-1", storage.MemoryUpdate{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestDeleteMemoryCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-1", "payload", "notes")))
	require.NoError(t, store.AddSummary(ctx, &types.Summary{
		ID:          "sum-1",
		MemoryID:    "mem-1",
		SummaryType: types.SummaryTypeDefault,
		SummaryText: "payload",
	}))

	require.NoError(t, store.DeleteMemory(ctx, "mem-1"))

	_, err := store.GetMemory(ctx, "mem-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetSummary(ctx, "sum-1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "summary should be removed by cascade")

	_, err = store.GetTopic(ctx, "notes")
	assert.ErrorIs(t, err, storage.ErrNotFound, "empty topic should be removed")

	assert.ErrorIs(t, store.DeleteMemory(ctx, "mem-1"), storage.ErrNotFound)
}

func TestAddSummaryConstraints(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-1", "payload", "notes")))

	first := &types.Summary{ID: "sum-1", MemoryID: "mem-1", SummaryType: types.SummaryTypeDefault, SummaryText: "short"}
	require.NoError(t, store.AddSummary(ctx, first))

	// Same memory and type again is a conflict.
	dup := &types.Summary{ID: "sum-2", MemoryID: "mem-1", SummaryType: types.SummaryTypeDefault, SummaryText: "other"}
	assert.ErrorIs(t, store.AddSummary(ctx, dup), storage.ErrConflict)

	// A summary for a memory that does not exist is rejected.
	orphan := &types.Summary{ID: "sum-3", MemoryID: "missing", SummaryType: types.SummaryTypeDefault, SummaryText: "x"}
	assert.ErrorIs(t, store.AddSummary(ctx, orphan), storage.ErrNotFound)

	// A different type for the same memory is fine.
	other := &types.Summary{ID: "sum-4", MemoryID: "mem-1", SummaryType: "extractive_short", SummaryText: "alt"}
	assert.NoError(t, store.AddSummary(ctx, other))

	summaries, err := store.ListSummaries(ctx, "mem-1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
}

func TestUpdateSummaryText(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-1", "payload", "notes")))
	require.NoError(t, store.AddSummary(ctx, &types.Summary{
		ID: "sum-1", MemoryID: "mem-1", SummaryType: types.SummaryTypeDefault, SummaryText: "before",
	}))

	updated, err := store.UpdateSummaryText(ctx, "sum-1", "after")
	require.NoError(t, err)
	assert.Equal(t, "after", updated.SummaryText)

	_, err = store.UpdateSummaryText(ctx, "missing", "x")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetSummaryByType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-1", "payload", "notes")))
	require.NoError(t, store.AddSummary(ctx, &types.Summary{
		ID: "sum-1", MemoryID: "mem-1", SummaryType: types.SummaryTypeDefault, SummaryText: "short",
	}))

	got, err := store.GetSummaryByType(ctx, "mem-1", types.SummaryTypeDefault)
	require.NoError(t, err)
	assert.Equal(t, "sum-1", got.ID)

	_, err = store.GetSummaryByType(ctx, "mem-1", "query_focused_detailed")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListTopicsOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-1", "payload", "alpha")))
	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-2", "payload", "beta")))

	// Pin timestamps so the ordering is not at the mercy of the clock.
	db := store.GetDB()
	_, err := db.ExecContext(ctx, "UPDATE topics SET updated_at = $1 WHERE name = $2", "2025-03-01T10:00:00Z", "alpha")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "UPDATE topics SET updated_at = $1 WHERE name = $2", "2025-03-01T10:00:05Z", "beta")
	require.NoError(t, err)

	topics, err := store.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "beta", topics[0].Name, "most recently updated topic first")
	assert.Equal(t, "alpha", topics[1].Name)
}

func TestStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalMemories)
	assert.NotNil(t, empty.TopTopics)
	assert.Empty(t, empty.LatestItemDate)

	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-1", "a", "golang")))
	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-2", "b", "golang")))
	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-3", "c", "python")))

	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.TotalMemories)
	assert.Equal(t, 2, status.TotalTopics)
	require.NotEmpty(t, status.TopTopics)
	assert.Equal(t, storage.TopicCount{Name: "golang", Count: 2}, status.TopTopics[0])
	assert.NotEmpty(t, status.LatestItemDate)
}

// ---- Vector store tests ----

func TestVectorsUpsertAndSearch(t *testing.T) {
	store := newTestStore(t)
	vectors := store.Vectors()
	ctx := context.Background()

	require.NoError(t, vectors.UpsertMemory(ctx, newTestItem("mem-1", "goroutines and channels in golang", "golang")))
	require.NoError(t, vectors.UpsertMemory(ctx, newTestItem("mem-2", "pandas dataframes in python", "python")))

	results, err := vectors.SearchMemories(ctx, "golang goroutines", 2, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "mem-1", results[0].ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "results ordered by score")
	}
}

func TestVectorsSearchTopicFilter(t *testing.T) {
	store := newTestStore(t)
	vectors := store.Vectors()
	ctx := context.Background()

	require.NoError(t, vectors.UpsertMemory(ctx, newTestItem("mem-1", "identical payload", "golang")))
	require.NoError(t, vectors.UpsertMemory(ctx, newTestItem("mem-2", "identical payload", "python")))

	results, err := vectors.SearchMemories(ctx, "identical payload", 5, "python")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem-2", results[0].ID)
}

func TestVectorsSearchTieBreaksOnID(t *testing.T) {
	store := newTestStore(t)
	vectors := store.Vectors()
	ctx := context.Background()

	// Insert in reverse order so insertion order cannot mask the tiebreak.
	require.NoError(t, vectors.UpsertMemory(ctx, newTestItem("mem-b", "identical payload", "notes")))
	require.NoError(t, vectors.UpsertMemory(ctx, newTestItem("mem-a", "identical payload", "notes")))

	results, err := vectors.SearchMemories(ctx, "identical payload", 2, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "mem-a", results[0].ID)
	assert.Equal(t, "mem-b", results[1].ID)
}

func TestVectorsMetadataOnlyUpdate(t *testing.T) {
	store := newTestStore(t)
	vectors := store.Vectors()
	ctx := context.Background()

	item := newTestItem("mem-1", "rollout checklist", "infra")
	require.NoError(t, vectors.UpsertMemory(ctx, item))

	item.Topic = "platform"
	require.NoError(t, vectors.UpdateMemory(ctx, item, false))

	results, err := vectors.SearchMemories(ctx, "rollout checklist", 5, "platform")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem-1", results[0].ID)

	results, err = vectors.SearchMemories(ctx, "rollout checklist", 5, "infra")
	require.NoError(t, err)
	assert.Empty(t, results, "old topic filter should no longer match")
}

func TestVectorsUpdateMissingFallsBackToUpsert(t *testing.T) {
	store := newTestStore(t)
	vectors := store.Vectors()
	ctx := context.Background()

	require.NoError(t, vectors.UpdateMemory(ctx, newTestItem("mem-1", "fresh record", "notes"), false))

	ids, err := vectors.ListMemoryIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem-1"}, ids)
}

func TestVectorsDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	vectors := store.Vectors()
	ctx := context.Background()

	require.NoError(t, vectors.UpsertMemory(ctx, newTestItem("mem-1", "payload", "notes")))
	require.NoError(t, vectors.DeleteMemory(ctx, "mem-1"))

	ids, err := vectors.ListMemoryIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.NoError(t, vectors.DeleteMemory(ctx, "mem-1"), "second delete is best-effort")
}

func TestVectorsSummaryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	vectors := store.Vectors()
	ctx := context.Background()

	summary := &types.Summary{
		ID:          "sum-1",
		MemoryID:    "mem-1",
		SummaryType: types.SummaryTypeDefault,
		SummaryText: "standup notes for the platform team",
	}
	require.NoError(t, vectors.UpsertSummary(ctx, summary, "platform"))

	results, err := vectors.SearchSummaries(ctx, "platform standup", 5, "platform")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sum-1", results[0].ID)

	ids, err := vectors.ListSummaryIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sum-1"}, ids)

	require.NoError(t, vectors.DeleteSummary(ctx, "sum-1"))
	results, err = vectors.SearchSummaries(ctx, "platform standup", 5, "")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorsTopicDocument(t *testing.T) {
	store := newTestStore(t)
	vectors := store.Vectors()
	ctx := context.Background()

	require.NoError(t, vectors.UpsertTopic(ctx, "golang", []string{"concurrency", "runtime"}))

	status, err := vectors.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Collections["topics"])

	require.NoError(t, vectors.DeleteTopic(ctx, "golang"))
	require.NoError(t, vectors.DeleteTopic(ctx, "golang"), "second delete is best-effort")
}

func TestVectorsStatus(t *testing.T) {
	store := newTestStore(t)
	vectors := store.Vectors()
	ctx := context.Background()

	status, err := vectors.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.Collections["memory_items"])
	assert.Equal(t, int64(0), status.Collections["summaries"])
	assert.Equal(t, int64(0), status.Collections["topics"])
	assert.NotEmpty(t, status.Path)

	require.NoError(t, vectors.UpsertMemory(ctx, newTestItem("mem-1", "payload", "notes")))

	status, err = vectors.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Collections["memory_items"])
}

func TestVectorsResetLeavesRelationalData(t *testing.T) {
	store := newTestStore(t)
	vectors := store.Vectors()
	ctx := context.Background()

	require.NoError(t, store.AddMemory(ctx, newTestItem("mem-1", "payload", "notes")))
	require.NoError(t, vectors.UpsertMemory(ctx, newTestItem("mem-1", "payload", "notes")))

	require.NoError(t, vectors.Reset(ctx))

	ids, err := vectors.ListMemoryIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// The relational half is untouched by a vector reset.
	_, err = store.GetMemory(ctx, "mem-1")
	assert.NoError(t, err)
}
