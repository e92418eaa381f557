// Package sqlite provides the SQLite implementation of the relational store.
package sqlite

// Schema contains the SQL statements that create the relational tables.
// Topics carry a denormalized item_count that is maintained transactionally
// by the store; summaries cascade when their memory item is deleted.
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
    tags TEXT NOT NULL DEFAULT '[]',
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

-- Indexes for common lookups
CREATE INDEX IF NOT EXISTS idx_memory_items_topic ON memory_items(topic_name);
CREATE INDEX IF NOT EXISTS idx_memory_items_created ON memory_items(created_at);
CREATE INDEX IF NOT EXISTS idx_summaries_memory ON summaries(memory_id);
`
