// Package postgres provides a PostgreSQL implementation of both storage
// halves: the relational store and, through Vectors, the vector store. One
// DATABASE_URL serves the whole engine.
package postgres

import "fmt"

// Schema contains the SQL statements to create the database schema.
// All statements are idempotent (IF NOT EXISTS) so the schema can be applied
// on every startup.
const Schema = `
-- Topics table: named groupings of memory items with a live item count
CREATE TABLE IF NOT EXISTS topics (
    name TEXT PRIMARY KEY,
    description TEXT,
    item_count INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Memory items table: full content plus its topic and tags
CREATE TABLE IF NOT EXISTS memory_items (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    topic_name TEXT NOT NULL REFERENCES topics(name),
    tags JSONB NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1
);

-- Summaries table: condensed representations of a memory item,
-- at most one row per (memory, summary type) pair
CREATE TABLE IF NOT EXISTS summaries (
    id TEXT PRIMARY KEY,
    memory_id TEXT NOT NULL REFERENCES memory_items(id) ON DELETE CASCADE,
    summary_type TEXT NOT NULL,
    summary_text TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE(memory_id, summary_type)
);

-- Embeddings table: the vector half. Records are keyed by (id, collection)
-- so memory items, summaries, and topics share one table. The raw vector is
-- always stored as BYTEA; a pgvector column is added by migration when the
-- extension is available.
CREATE TABLE IF NOT EXISTS embeddings (
    id TEXT NOT NULL,
    collection TEXT NOT NULL,
    content TEXT NOT NULL,
    embedding BYTEA NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (id, collection)
);

-- Indexes for common lookups
CREATE INDEX IF NOT EXISTS idx_memory_items_topic ON memory_items(topic_name);
CREATE INDEX IF NOT EXISTS idx_memory_items_created ON memory_items(created_at);
CREATE INDEX IF NOT EXISTS idx_summaries_memory ON summaries(memory_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_collection ON embeddings(collection);
`

// migrationPgvector returns SQL that adds pgvector support to the embeddings
// table, typed to the embedder's dimensionality. Only applied when the vector
// extension is available. Safe to run multiple times.
func migrationPgvector(dimensions int) string {
	return fmt.Sprintf(`
-- Add embedding_vec column if it doesn't already exist.
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'embeddings' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE embeddings ADD COLUMN embedding_vec vector(%d);
    END IF;
END
$$;

-- Create ivfflat index for approximate nearest-neighbor vector search.
-- Lists = 100 is a good default for up to ~1M vectors; tune upward for larger datasets.
-- IMPORTANT: ivfflat needs data to train its lists, so we only create the
-- index once rows exist; until then searches fall back to a sequential scan.
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_embeddings_vec_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM embeddings LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_embeddings_vec_cosine ON embeddings USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`, dimensions)
}
