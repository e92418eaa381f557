// Package vector provides the sqvect-backed implementation of the vector
// store. Memory items, summaries, and topics each live in their own
// collection; records carry the relational metadata needed to hydrate
// search hits back into full rows.
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/liliang-cn/cortexdb/v2/pkg/core"

	"github.com/scrypster/engram/internal/llm"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Collection names inside the sqvect index.
const (
	memoriesCollection  = "memory_items"
	summariesCollection = "summaries"
	topicsCollection    = "topics"
)

// Store implements storage.VectorStore on top of a sqvect SQLite index.
type Store struct {
	store    *core.SQLiteStore
	embedder llm.EmbeddingGenerator
	path     string
}

var _ storage.VectorStore = (*Store)(nil)

// New opens (or creates) the vector index at the given path and ensures the
// three collections exist. The embedder determines the index dimensionality.
func New(ctx context.Context, path string, embedder llm.EmbeddingGenerator) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedding generator is required")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create vector directory: %w", err)
		}
	}

	inner, err := core.New(path, embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	if err := inner.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialise vector store: %w", err)
	}

	s := &Store{store: inner, embedder: embedder, path: path}
	if err := s.Initialize(ctx); err != nil {
		s.store.Close()
		return nil, err
	}
	return s, nil
}

// Initialize creates any missing collections. It is safe to call on an
// already initialised store.
func (s *Store) Initialize(ctx context.Context) error {
	for _, name := range []string{memoriesCollection, summariesCollection, topicsCollection} {
		if _, err := s.store.GetCollection(ctx, name); err == nil {
			continue
		}
		if _, err := s.store.CreateCollection(ctx, name, s.embedder.Dimensions()); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

// Reset drops and recreates all collections.
func (s *Store) Reset(ctx context.Context) error {
	for _, name := range []string{memoriesCollection, summariesCollection, topicsCollection} {
		if _, err := s.store.GetCollection(ctx, name); err == nil {
			if err := s.store.DeleteCollection(ctx, name); err != nil {
				return fmt.Errorf("failed to delete collection %s: %w", name, err)
			}
		}
		if _, err := s.store.CreateCollection(ctx, name, s.embedder.Dimensions()); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

// UpsertMemory embeds the item's content and stores it with its relational
// metadata, replacing any previous record under the same id.
func (s *Store) UpsertMemory(ctx context.Context, item *types.MemoryItem) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("%w: memory item with id is required", storage.ErrInvalidInput)
	}

	vec, err := s.embedder.Embed(ctx, item.Content)
	if err != nil {
		return fmt.Errorf("failed to embed memory content: %w", err)
	}

	emb := &core.Embedding{
		ID:         item.ID,
		Collection: memoriesCollection,
		Vector:     vec,
		Content:    item.Content,
		Metadata:   memoryMetadata(item),
	}
	if err := s.store.Upsert(ctx, emb); err != nil {
		return fmt.Errorf("failed to upsert memory embedding: %w", err)
	}
	return nil
}

// UpdateMemory refreshes the stored record for an item. When the content is
// unchanged the existing vector is reused so no embedding work happens; a
// record that went missing is simply re-created.
func (s *Store) UpdateMemory(ctx context.Context, item *types.MemoryItem, contentChanged bool) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("%w: memory item with id is required", storage.ErrInvalidInput)
	}

	if contentChanged {
		return s.UpsertMemory(ctx, item)
	}

	existing, err := s.store.GetByID(ctx, item.ID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return s.UpsertMemory(ctx, item)
		}
		return fmt.Errorf("failed to read memory embedding: %w", err)
	}

	emb := &core.Embedding{
		ID:         item.ID,
		Collection: memoriesCollection,
		Vector:     existing.Vector,
		Content:    item.Content,
		Metadata:   memoryMetadata(item),
	}
	if err := s.store.Upsert(ctx, emb); err != nil {
		return fmt.Errorf("failed to update memory embedding: %w", err)
	}
	return nil
}

// DeleteMemory removes the embedding for a memory id. Missing records are
// not an error so lifecycle cleanup can run against a drifted index.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	return s.delete(ctx, id, "memory")
}

// SearchMemories returns the ids of the topK memories closest to the query,
// optionally restricted to one topic.
func (s *Store) SearchMemories(ctx context.Context, query string, topK int, topic string) ([]storage.SearchResult, error) {
	return s.search(ctx, memoriesCollection, query, topK, topic)
}

// UpsertSummary embeds the summary text and stores it tagged with its memory
// id, summary type, and owning topic.
func (s *Store) UpsertSummary(ctx context.Context, summary *types.Summary, topic string) error {
	if summary == nil || summary.ID == "" {
		return fmt.Errorf("%w: summary with id is required", storage.ErrInvalidInput)
	}

	vec, err := s.embedder.Embed(ctx, summary.SummaryText)
	if err != nil {
		return fmt.Errorf("failed to embed summary text: %w", err)
	}

	emb := &core.Embedding{
		ID:         summary.ID,
		Collection: summariesCollection,
		Vector:     vec,
		Content:    summary.SummaryText,
		Metadata: map[string]string{
			"memory_id":    summary.MemoryID,
			"summary_type": summary.SummaryType,
			"topic":        topic,
		},
	}
	if err := s.store.Upsert(ctx, emb); err != nil {
		return fmt.Errorf("failed to upsert summary embedding: %w", err)
	}
	return nil
}

// DeleteSummary removes the embedding for a summary id, if present.
func (s *Store) DeleteSummary(ctx context.Context, id string) error {
	return s.delete(ctx, id, "summary")
}

// SearchSummaries returns the ids of the topK summaries closest to the
// query, optionally restricted to one topic.
func (s *Store) SearchSummaries(ctx context.Context, query string, topK int, topic string) ([]storage.SearchResult, error) {
	return s.search(ctx, summariesCollection, query, topK, topic)
}

// UpsertTopic stores a synthesized description of the topic so topics
// themselves can be matched by similarity.
func (s *Store) UpsertTopic(ctx context.Context, name string, tags []string) error {
	if name == "" {
		return fmt.Errorf("%w: topic name is required", storage.ErrInvalidInput)
	}

	doc := topicDocument(name, tags)
	vec, err := s.embedder.Embed(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to embed topic document: %w", err)
	}

	emb := &core.Embedding{
		ID:         name,
		Collection: topicsCollection,
		Vector:     vec,
		Content:    doc,
		Metadata: map[string]string{
			"name":       name,
			"tags":       tagsJSON(tags),
			"updated_at": types.Timestamp(),
		},
	}
	if err := s.store.Upsert(ctx, emb); err != nil {
		return fmt.Errorf("failed to upsert topic embedding: %w", err)
	}
	return nil
}

// DeleteTopic removes the embedding for a topic name, if present.
func (s *Store) DeleteTopic(ctx context.Context, name string) error {
	return s.delete(ctx, name, "topic")
}

// ListMemoryIDs returns all ids in the memory collection.
func (s *Store) ListMemoryIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, memoriesCollection)
}

// ListSummaryIDs returns all ids in the summary collection.
func (s *Store) ListSummaryIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, summariesCollection)
}

// Status reports per-collection embedding counts and the index path.
func (s *Store) Status(ctx context.Context) (*storage.VectorStatus, error) {
	status := &storage.VectorStatus{
		Collections: make(map[string]int64, 3),
		Path:        s.path,
	}
	for _, name := range []string{memoriesCollection, summariesCollection, topicsCollection} {
		stats, err := s.store.GetCollectionStats(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to get stats for collection %s: %w", name, err)
		}
		status.Collections[name] = stats.Count
	}
	return status, nil
}

// Close releases the underlying index.
func (s *Store) Close() error {
	return s.store.Close()
}

func (s *Store) delete(ctx context.Context, id, kind string) error {
	if id == "" {
		return fmt.Errorf("%w: %s id is required", storage.ErrInvalidInput, kind)
	}
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("failed to delete %s embedding: %w", kind, err)
	}
	return nil
}

func (s *Store) search(ctx context.Context, collection, query string, topK int, topic string) ([]storage.SearchResult, error) {
	results := make([]storage.SearchResult, 0, topK)
	if topK <= 0 {
		return results, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	opts := core.SearchOptions{
		Collection: collection,
		TopK:       topK,
	}
	if topic != "" {
		opts.Filter = map[string]string{"topic": topic}
	}

	scored, err := s.store.Search(ctx, vec, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}

	for _, hit := range scored {
		results = append(results, storage.SearchResult{ID: hit.ID, Score: hit.Score})
	}

	// sqvect orders by score only; make ties deterministic by id.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// listIDs enumerates the ids stored in one collection. sqvect has no listing
// API, so this goes through its exported database handle.
func (s *Store) listIDs(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.store.GetDB().QueryContext(ctx, `
		SELECT e.id
		FROM embeddings e
		JOIN collections c ON e.collection_id = c.id
		WHERE c.name = ?
		ORDER BY e.id`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", collection, err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ids: %w", err)
	}
	return ids, nil
}

// memoryMetadata builds the per-record metadata mirrored from the
// relational row.
func memoryMetadata(item *types.MemoryItem) map[string]string {
	return map[string]string{
		"topic":      item.Topic,
		"tags":       tagsJSON(item.Tags),
		"created_at": item.CreatedAt,
		"updated_at": item.UpdatedAt,
	}
}

// tagsJSON serialises tags as a JSON array, never as JSON null.
func tagsJSON(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// topicDocument synthesizes the text embedded for a topic.
func topicDocument(name string, tags []string) string {
	about := name
	if len(tags) > 0 {
		about = strings.Join(tags, ", ")
	}
	return fmt.Sprintf("Topic %s containing information about %s", name, about)
}
