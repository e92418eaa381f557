package storage

import "errors"

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a uniqueness constraint violation.
	ErrConflict = errors.New("conflict")
)

// MemoryUpdate describes a partial update to a memory item. A nil field is
// left unchanged; Tags replaces the whole list when non-nil (an empty,
// non-nil slice clears it).
type MemoryUpdate struct {
	Content *string
	Topic   *string
	Tags    []string
}

// Empty reports whether the update would change nothing.
func (u MemoryUpdate) Empty() bool {
	return u.Content == nil && u.Topic == nil && u.Tags == nil
}

// SearchResult is a single vector search hit: the stored record's id and
// its similarity score.
type SearchResult struct {
	// ID is the identifier of the matched record.
	ID string

	// Score is the similarity score (higher is closer).
	Score float64
}

// TopicCount pairs a topic name with its memory item count.
type TopicCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RelationalStatus summarizes the relational half of the system.
type RelationalStatus struct {
	// TotalMemories is the number of stored memory items.
	TotalMemories int `json:"total_memories"`

	// TotalTopics is the number of topics currently holding items.
	TotalTopics int `json:"total_topics"`

	// TopTopics lists the largest topics by item count, capped at five.
	TopTopics []TopicCount `json:"top_topics"`

	// LatestItemDate is the created_at of the newest memory item, or ""
	// when the store is empty.
	LatestItemDate string `json:"latest_item_date"`
}

// VectorStatus summarizes the vector half of the system.
type VectorStatus struct {
	// Collections maps collection name to stored embedding count.
	Collections map[string]int64 `json:"collections"`

	// Path is the location of the vector index on disk.
	Path string `json:"path"`
}
