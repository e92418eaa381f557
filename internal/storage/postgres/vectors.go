package postgres

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Collection names inside the embeddings table.
const (
	memoriesCollection  = "memory_items"
	summariesCollection = "summaries"
	topicsCollection    = "topics"
)

// Vectors returns the vector-store half of this store. It shares the
// relational store's connection; closing the relational store closes it.
func (s *Store) Vectors() storage.VectorStore {
	return &vectorStore{s: s}
}

// vectorStore implements storage.VectorStore on the shared connection.
// Vectors are always stored as BYTEA; when the pgvector extension is
// available the embedding_vec column serves cosine-distance queries, and
// without it similarity is computed in-process over the candidate rows.
type vectorStore struct {
	s *Store
}

var _ storage.VectorStore = (*vectorStore)(nil)

// Initialize applies the schema, which covers the embeddings table.
func (v *vectorStore) Initialize(ctx context.Context) error {
	return v.s.Initialize(ctx)
}

// Reset removes all embedding records.
func (v *vectorStore) Reset(ctx context.Context) error {
	if _, err := v.s.db.ExecContext(ctx, "TRUNCATE TABLE embeddings"); err != nil {
		return fmt.Errorf("postgres: failed to truncate embeddings: %w", err)
	}
	return nil
}

// UpsertMemory embeds the item's content and stores it with its relational
// metadata.
func (v *vectorStore) UpsertMemory(ctx context.Context, item *types.MemoryItem) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("%w: memory item with id is required", storage.ErrInvalidInput)
	}

	vec, err := v.s.embedder.Embed(ctx, item.Content)
	if err != nil {
		return fmt.Errorf("failed to embed memory content: %w", err)
	}
	return v.upsertEmbedding(ctx, item.ID, memoriesCollection, item.Content, vec, memoryMetadata(item))
}

// UpdateMemory rewrites content and metadata for an existing record, keeping
// its embedding when the content is unchanged. A missing record falls back
// to a full upsert.
func (v *vectorStore) UpdateMemory(ctx context.Context, item *types.MemoryItem, contentChanged bool) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("%w: memory item with id is required", storage.ErrInvalidInput)
	}

	if contentChanged {
		return v.UpsertMemory(ctx, item)
	}

	metadataJSON, err := json.Marshal(memoryMetadata(item))
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	result, err := v.s.db.ExecContext(ctx, `
		UPDATE embeddings
		SET content = $1, metadata = $2, updated_at = $3
		WHERE id = $4 AND collection = $5`,
		item.Content, metadataJSON, types.Timestamp(), item.ID, memoriesCollection,
	)
	if err != nil {
		return fmt.Errorf("failed to update memory embedding: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return v.UpsertMemory(ctx, item)
	}
	return nil
}

// DeleteMemory removes the embedding for a memory id, if present.
func (v *vectorStore) DeleteMemory(ctx context.Context, id string) error {
	return v.delete(ctx, id, memoriesCollection)
}

// SearchMemories returns the ids of the topK memories closest to the query,
// optionally restricted to one topic.
func (v *vectorStore) SearchMemories(ctx context.Context, query string, topK int, topic string) ([]storage.SearchResult, error) {
	return v.search(ctx, memoriesCollection, query, topK, topic)
}

// UpsertSummary embeds the summary text and stores it tagged with its memory
// id, summary type, and owning topic.
func (v *vectorStore) UpsertSummary(ctx context.Context, summary *types.Summary, topic string) error {
	if summary == nil || summary.ID == "" {
		return fmt.Errorf("%w: summary with id is required", storage.ErrInvalidInput)
	}

	vec, err := v.s.embedder.Embed(ctx, summary.SummaryText)
	if err != nil {
		return fmt.Errorf("failed to embed summary text: %w", err)
	}

	metadata := map[string]string{
		"memory_id":    summary.MemoryID,
		"summary_type": summary.SummaryType,
		"topic":        topic,
	}
	return v.upsertEmbedding(ctx, summary.ID, summariesCollection, summary.SummaryText, vec, metadata)
}

// DeleteSummary removes the embedding for a summary id, if present.
func (v *vectorStore) DeleteSummary(ctx context.Context, id string) error {
	return v.delete(ctx, id, summariesCollection)
}

// SearchSummaries returns the ids of the topK summaries closest to the
// query, optionally restricted to one topic.
func (v *vectorStore) SearchSummaries(ctx context.Context, query string, topK int, topic string) ([]storage.SearchResult, error) {
	return v.search(ctx, summariesCollection, query, topK, topic)
}

// UpsertTopic stores a synthesized description of the topic.
func (v *vectorStore) UpsertTopic(ctx context.Context, name string, tags []string) error {
	if name == "" {
		return fmt.Errorf("%w: topic name is required", storage.ErrInvalidInput)
	}

	doc := topicDocument(name, tags)
	vec, err := v.s.embedder.Embed(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to embed topic document: %w", err)
	}

	metadata := map[string]string{
		"name":       name,
		"tags":       tagsJSON(tags),
		"updated_at": types.Timestamp(),
	}
	return v.upsertEmbedding(ctx, name, topicsCollection, doc, vec, metadata)
}

// DeleteTopic removes the embedding for a topic name, if present.
func (v *vectorStore) DeleteTopic(ctx context.Context, name string) error {
	return v.delete(ctx, name, topicsCollection)
}

// ListMemoryIDs returns all ids in the memory collection.
func (v *vectorStore) ListMemoryIDs(ctx context.Context) ([]string, error) {
	return listIDs(ctx, v.s.db, "SELECT id FROM embeddings WHERE collection = $1 ORDER BY id", memoriesCollection)
}

// ListSummaryIDs returns all ids in the summary collection.
func (v *vectorStore) ListSummaryIDs(ctx context.Context) ([]string, error) {
	return listIDs(ctx, v.s.db, "SELECT id FROM embeddings WHERE collection = $1 ORDER BY id", summariesCollection)
}

// Status reports per-collection embedding counts and the (redacted)
// connection the records live on.
func (v *vectorStore) Status(ctx context.Context) (*storage.VectorStatus, error) {
	status := &storage.VectorStatus{
		Collections: map[string]int64{
			memoriesCollection:  0,
			summariesCollection: 0,
			topicsCollection:    0,
		},
		Path: v.s.path,
	}

	rows, err := v.s.db.QueryContext(ctx,
		"SELECT collection, COUNT(*) FROM embeddings GROUP BY collection")
	if err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan collection count: %w", err)
		}
		status.Collections[name] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collection counts: %w", err)
	}
	return status, nil
}

// Close is a no-op: the relational store owns the shared connection.
func (v *vectorStore) Close() error {
	return nil
}

// upsertEmbedding writes one record. The vector is always stored in the
// BYTEA column; when pgvector is available it is also written to
// embedding_vec for indexed cosine-distance queries.
func (v *vectorStore) upsertEmbedding(ctx context.Context, id, collection, content string, vec []float32, metadata map[string]string) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	embeddingBytes := serializeVector(vec)
	now := types.Timestamp()

	if v.s.pgvectorAvailable {
		query := `
			INSERT INTO embeddings (id, collection, content, embedding, metadata, embedding_vec, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (id, collection) DO UPDATE SET
				content = excluded.content,
				embedding = excluded.embedding,
				metadata = excluded.metadata,
				embedding_vec = excluded.embedding_vec,
				updated_at = excluded.updated_at
		`
		_, err := v.s.db.ExecContext(ctx, query, id, collection, content, embeddingBytes, metadataJSON, pgvector.NewVector(vec), now)
		if err != nil {
			// Pgvector write failed — fall back to the BYTEA-only path and log.
			log.Printf("postgres: failed to store embedding_vec (falling back to BYTEA only): %v", err)
			goto byteaOnly
		}
		return nil
	}

byteaOnly:
	query := `
		INSERT INTO embeddings (id, collection, content, embedding, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id, collection) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`
	if _, err := v.s.db.ExecContext(ctx, query, id, collection, content, embeddingBytes, metadataJSON, now); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

func (v *vectorStore) delete(ctx context.Context, id, collection string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", storage.ErrInvalidInput)
	}
	if _, err := v.s.db.ExecContext(ctx,
		"DELETE FROM embeddings WHERE id = $1 AND collection = $2", id, collection,
	); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}

func (v *vectorStore) search(ctx context.Context, collection, query string, topK int, topic string) ([]storage.SearchResult, error) {
	results := make([]storage.SearchResult, 0, topK)
	if topK <= 0 {
		return results, nil
	}

	vec, err := v.s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if v.s.pgvectorAvailable {
		return v.searchPgvector(ctx, collection, vec, topK, topic)
	}
	return v.searchInProcess(ctx, collection, vec, topK, topic)
}

// searchPgvector runs the similarity query on the server using the cosine
// distance operator.
func (v *vectorStore) searchPgvector(ctx context.Context, collection string, vec []float32, topK int, topic string) ([]storage.SearchResult, error) {
	query := `
		SELECT id, 1 - (embedding_vec <=> $1::vector) AS score
		FROM embeddings
		WHERE collection = $2 AND embedding_vec IS NOT NULL`
	args := []interface{}{pgvector.NewVector(vec), collection}

	if topic != "" {
		query += fmt.Sprintf(" AND metadata->>'topic' = $%d", len(args)+1)
		args = append(args, topic)
	}
	query += fmt.Sprintf(" ORDER BY score DESC, id ASC LIMIT $%d", len(args)+1)
	args = append(args, topK)

	rows, err := v.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}
	defer rows.Close()

	results := make([]storage.SearchResult, 0, topK)
	for rows.Next() {
		var r storage.SearchResult
		if err := rows.Scan(&r.ID, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}
	return results, nil
}

// searchInProcess loads the candidate vectors and ranks them by cosine
// similarity in Go. Used when the pgvector extension is unavailable.
func (v *vectorStore) searchInProcess(ctx context.Context, collection string, vec []float32, topK int, topic string) ([]storage.SearchResult, error) {
	query := "SELECT id, embedding FROM embeddings WHERE collection = $1"
	args := []interface{}{collection}
	if topic != "" {
		query += " AND metadata->>'topic' = $2"
		args = append(args, topic)
	}

	rows, err := v.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}
	defer rows.Close()

	results := make([]storage.SearchResult, 0)
	for rows.Next() {
		var id string
		var embeddingBytes []byte
		if err := rows.Scan(&id, &embeddingBytes); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		candidate, err := deserializeVector(embeddingBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize embedding %s: %w", id, err)
		}
		results = append(results, storage.SearchResult{ID: id, Score: cosineSimilarity(vec, candidate)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate embeddings: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
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

// serializeVector converts a float32 slice to little-endian binary.
func serializeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector converts little-endian binary back to a float32 slice.
func deserializeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding length %d", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// cosineSimilarity computes the cosine similarity of two vectors. Zero-norm
// or mismatched inputs score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
