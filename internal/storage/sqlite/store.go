package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

// Store implements storage.RelationalStore using SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ storage.RelationalStore = (*Store)(nil)

// New creates a new SQLite store at the given path with WAL self-healing.
// If the initial open fails due to stale WAL files (left behind by a crashed
// process), it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := openStore(path)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) || path == ":memory:" {
		return nil, err
	}

	if !isWALStale(path) {
		return nil, err
	}

	removeStaleWAL(path)

	store, retryErr := openStore(path)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", path)
	return store, nil
}

// openStore opens a SQLite database, configures WAL mode, and creates the schema.
func openStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows concurrent readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Connections live for the lifetime of the store.

	// Enable WAL mode for better read concurrency (readers don't block writers).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout so that callers wait instead of getting an immediate
	// SQLITE_BUSY error when the connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Enable foreign keys (required for the summaries ON DELETE CASCADE).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Create schema
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Initialize creates the schema if it does not exist yet. New already runs
// the schema, so this is a no-op for freshly opened stores; it exists so the
// engine can re-initialise a store after a Reset.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Reset drops all tables and recreates an empty schema.
func (s *Store) Reset(ctx context.Context) error {
	// Drop children before parents so the foreign keys don't get in the way.
	for _, table := range []string{"summaries", "memory_items", "topics"} {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return s.Initialize(ctx)
}

// AddMemory inserts a new memory item and creates or increments its topic
// within the same transaction.
func (s *Store) AddMemory(ctx context.Context, item *types.MemoryItem) error {
	if item == nil {
		return storage.ErrInvalidInput
	}
	if item.ID == "" {
		return fmt.Errorf("%w: memory id is required", storage.ErrInvalidInput)
	}
	if item.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}
	if item.Topic == "" {
		return fmt.Errorf("%w: memory topic is required", storage.ErrInvalidInput)
	}

	// Set defaults if not provided
	if item.CreatedAt == "" {
		item.CreatedAt = types.Timestamp()
	}
	if item.UpdatedAt == "" {
		item.UpdatedAt = item.CreatedAt
	}
	if item.Version <= 0 {
		item.Version = 1
	}

	tagsJSON, err := marshalTags(item.Tags)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertTopicCount(ctx, tx, item.Topic, item.UpdatedAt); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memory_items (id, content, topic_name, tags, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Content, item.Topic, tagsJSON, item.CreatedAt, item.UpdatedAt, item.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: memory %s already exists", storage.ErrConflict, item.ID)
		}
		return fmt.Errorf("failed to insert memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetMemory retrieves a memory item by ID.
func (s *Store) GetMemory(ctx context.Context, id string) (*types.MemoryItem, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory id is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, topic_name, tags, created_at, updated_at, version
		FROM memory_items
		WHERE id = ?`, id)

	item, err := scanMemoryItem(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return item, nil
}

// UpdateMemory applies a partial update to a memory item. The version is
// bumped and updated_at refreshed; a topic change moves the item between
// topic counts in the same transaction.
func (s *Store) UpdateMemory(ctx context.Context, id string, upd storage.MemoryUpdate) (*types.MemoryItem, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory id is required", storage.ErrInvalidInput)
	}
	if upd.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", storage.ErrInvalidInput)
	}
	if upd.Content != nil && *upd.Content == "" {
		return nil, fmt.Errorf("%w: memory content cannot be empty", storage.ErrInvalidInput)
	}
	if upd.Topic != nil && *upd.Topic == "" {
		return nil, fmt.Errorf("%w: memory topic cannot be empty", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, content, topic_name, tags, created_at, updated_at, version
		FROM memory_items
		WHERE id = ?`, id)

	current, err := scanMemoryItem(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}

	updated := &types.MemoryItem{
		ID:        current.ID,
		Content:   current.Content,
		Topic:     current.Topic,
		Tags:      current.Tags,
		CreatedAt: current.CreatedAt,
		UpdatedAt: types.Timestamp(),
		Version:   current.Version + 1,
	}
	if upd.Content != nil {
		updated.Content = *upd.Content
	}
	if upd.Topic != nil {
		updated.Topic = *upd.Topic
	}
	if upd.Tags != nil {
		updated.Tags = upd.Tags
	}

	if updated.Topic != current.Topic {
		if err := decrementTopicCount(ctx, tx, current.Topic, updated.UpdatedAt); err != nil {
			return nil, err
		}
		if err := upsertTopicCount(ctx, tx, updated.Topic, updated.UpdatedAt); err != nil {
			return nil, err
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			"UPDATE topics SET updated_at = ? WHERE name = ?",
			updated.UpdatedAt, updated.Topic,
		); err != nil {
			return nil, fmt.Errorf("failed to touch topic: %w", err)
		}
	}

	tagsJSON, err := marshalTags(updated.Tags)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE memory_items
		SET content = ?, topic_name = ?, tags = ?, updated_at = ?, version = ?
		WHERE id = ?`,
		updated.Content, updated.Topic, tagsJSON, updated.UpdatedAt, updated.Version, id,
	); err != nil {
		return nil, fmt.Errorf("failed to update memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return updated, nil
}

// DeleteMemory removes a memory item. Its summaries are removed by the
// schema's ON DELETE CASCADE; the topic count decrements and the topic row
// disappears when it reaches zero.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: memory id is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var topic string
	err = tx.QueryRowContext(ctx, "SELECT topic_name FROM memory_items WHERE id = ?", id).Scan(&topic)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get memory: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM memory_items WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}

	if err := decrementTopicCount(ctx, tx, topic, types.Timestamp()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddSummary inserts a summary for an existing memory item.
func (s *Store) AddSummary(ctx context.Context, summary *types.Summary) error {
	if summary == nil {
		return storage.ErrInvalidInput
	}
	if summary.ID == "" {
		return fmt.Errorf("%w: summary id is required", storage.ErrInvalidInput)
	}
	if summary.MemoryID == "" {
		return fmt.Errorf("%w: summary memory id is required", storage.ErrInvalidInput)
	}
	if summary.SummaryType == "" {
		return fmt.Errorf("%w: summary type is required", storage.ErrInvalidInput)
	}

	if summary.CreatedAt == "" {
		summary.CreatedAt = types.Timestamp()
	}
	if summary.UpdatedAt == "" {
		summary.UpdatedAt = summary.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO summaries (id, memory_id, summary_type, summary_text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		summary.ID, summary.MemoryID, summary.SummaryType, summary.SummaryText,
		summary.CreatedAt, summary.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: memory %s already has a %s summary",
				storage.ErrConflict, summary.MemoryID, summary.SummaryType)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: memory %s does not exist", storage.ErrNotFound, summary.MemoryID)
		}
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

// GetSummary retrieves a summary by ID.
func (s *Store) GetSummary(ctx context.Context, id string) (*types.Summary, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: summary id is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, memory_id, summary_type, summary_text, created_at, updated_at
		FROM summaries
		WHERE id = ?`, id)

	summary, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return summary, nil
}

// GetSummaryByType retrieves the summary of a given type for a memory.
func (s *Store) GetSummaryByType(ctx context.Context, memoryID, summaryType string) (*types.Summary, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory id is required", storage.ErrInvalidInput)
	}
	if summaryType == "" {
		return nil, fmt.Errorf("%w: summary type is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, memory_id, summary_type, summary_text, created_at, updated_at
		FROM summaries
		WHERE memory_id = ? AND summary_type = ?`, memoryID, summaryType)

	summary, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return summary, nil
}

// UpdateSummaryText replaces the text of an existing summary in place,
// keeping its id so the vector record stays addressable.
func (s *Store) UpdateSummaryText(ctx context.Context, id, text string) (*types.Summary, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: summary id is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE summaries SET summary_text = ?, updated_at = ? WHERE id = ?",
		text, types.Timestamp(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update summary: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, storage.ErrNotFound
	}

	return s.GetSummary(ctx, id)
}

// ListSummaries returns all summaries belonging to a memory, ordered by
// summary type. An unknown memory id yields an empty slice.
func (s *Store) ListSummaries(ctx context.Context, memoryID string) ([]*types.Summary, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory id is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, summary_type, summary_text, created_at, updated_at
		FROM summaries
		WHERE memory_id = ?
		ORDER BY summary_type`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]*types.Summary, 0)
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summaries: %w", err)
	}
	return summaries, nil
}

// GetTopic retrieves a topic by name.
func (s *Store) GetTopic(ctx context.Context, name string) (*types.Topic, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: topic name is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT name, description, item_count, created_at, updated_at
		FROM topics
		WHERE name = ?`, name)

	topic, err := scanTopic(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	return topic, nil
}

// ListTopics returns all topics ordered by most recently updated first.
func (s *Store) ListTopics(ctx context.Context) ([]*types.Topic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, item_count, created_at, updated_at
		FROM topics
		ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	topics := make([]*types.Topic, 0)
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate topics: %w", err)
	}
	return topics, nil
}

// ListMemoryIDs returns the ids of all stored memory items.
func (s *Store) ListMemoryIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, "SELECT id FROM memory_items ORDER BY id")
}

// ListSummaryIDs returns the ids of all stored summaries.
func (s *Store) ListSummaryIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, "SELECT id FROM summaries ORDER BY id")
}

func (s *Store) listIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ids: %w", err)
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

// Status reports aggregate figures about the stored data.
func (s *Store) Status(ctx context.Context) (*storage.RelationalStatus, error) {
	status := &storage.RelationalStatus{
		TopTopics: make([]storage.TopicCount, 0, 5),
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memory_items",
	).Scan(&status.TotalMemories); err != nil {
		return nil, fmt.Errorf("failed to count memories: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM topics",
	).Scan(&status.TotalTopics); err != nil {
		return nil, fmt.Errorf("failed to count topics: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, item_count
		FROM topics
		ORDER BY item_count DESC, name ASC
		LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("failed to query top topics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc storage.TopicCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan topic count: %w", err)
		}
		status.TopTopics = append(status.TopTopics, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate top topics: %w", err)
	}

	// RFC3339 UTC timestamps sort lexicographically, so MAX works on the text column.
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(created_at), '') FROM memory_items",
	).Scan(&status.LatestItemDate); err != nil {
		return nil, fmt.Errorf("failed to get latest item date: %w", err)
	}

	return status, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// upsertTopicCount creates the topic with a count of one, or increments an
// existing topic's count, always refreshing updated_at.
func upsertTopicCount(ctx context.Context, tx *sql.Tx, name, now string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO topics (name, item_count, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			item_count = item_count + 1,
			updated_at = excluded.updated_at`,
		name, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert topic: %w", err)
	}
	return nil
}

// decrementTopicCount decrements the topic's count and removes the topic row
// once it holds no items.
func decrementTopicCount(ctx context.Context, tx *sql.Tx, name, now string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE topics
		SET item_count = item_count - 1, updated_at = ?
		WHERE name = ?`,
		now, name,
	); err != nil {
		return fmt.Errorf("failed to decrement topic: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM topics WHERE name = ? AND item_count <= 0", name,
	); err != nil {
		return fmt.Errorf("failed to remove empty topic: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemoryItem(row rowScanner) (*types.MemoryItem, error) {
	var item types.MemoryItem
	var tagsJSON string

	err := row.Scan(&item.ID, &item.Content, &item.Topic, &tagsJSON,
		&item.CreatedAt, &item.UpdatedAt, &item.Version)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &item.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	return &item, nil
}

func scanSummary(row rowScanner) (*types.Summary, error) {
	var summary types.Summary
	err := row.Scan(&summary.ID, &summary.MemoryID, &summary.SummaryType,
		&summary.SummaryText, &summary.CreatedAt, &summary.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func scanTopic(row rowScanner) (*types.Topic, error) {
	var topic types.Topic
	var description sql.NullString

	err := row.Scan(&topic.Name, &description, &topic.ItemCount,
		&topic.CreatedAt, &topic.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		topic.Description = description.String
	}
	return &topic, nil
}

// marshalTags serialises a tag list as a JSON array, never as JSON null.
func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	return string(b), nil
}

// isUniqueViolation reports whether the error is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports whether the error is a FOREIGN KEY constraint failure.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// isRecoverableWALError returns true if the error matches patterns caused by
// stale WAL files left behind after a crash (SIGKILL, OOM, etc.).
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

// isWALStale checks whether -shm/-wal files exist for the given database path
// AND no other process currently holds them open (via lsof).
// Returns false if lsof is unavailable (conservative: no deletion).
func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	// Check if any process has the database or WAL files open.
	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		// lsof not available (e.g., Alpine Docker) — conservative fallback.
		return false
	}

	// Check the main db file, -shm, and -wal in a single lsof invocation.
	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		// lsof returns exit code 1 when no files are open — that means stale.
		return true
	}

	// If lsof produced output, some process has these files open — not stale.
	return strings.TrimSpace(string(output)) == ""
}

// removeStaleWAL removes -shm and -wal files for the given database path.
func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

// fileExists returns true if the path exists on disk.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
