// Package types defines the core data structures for the Engram memory
// system: the entities persisted by the stores (topics, memory items,
// summaries) and the uniform response envelope returned by every memory
// operation.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope status values. Every operation result carries exactly one.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error kinds carried under error_details.kind in an error envelope.
// Callers branch on the kind, never on message text.
const (
	// KindInvalidArgument indicates the caller supplied malformed or
	// missing arguments (empty content, unknown summary type, bad tags).
	KindInvalidArgument = "invalid_argument"

	// KindNotFound indicates the referenced memory or topic does not exist.
	KindNotFound = "not_found"

	// KindConflict indicates a uniqueness constraint was violated.
	KindConflict = "conflict"

	// KindDependencyUnavailable indicates an optional dependency (the
	// summarization backend) is not reachable or not configured.
	KindDependencyUnavailable = "dependency_unavailable"

	// KindStoreIO indicates a read or write against one of the stores failed.
	KindStoreIO = "store_io"

	// KindPartialWrite indicates one store succeeded while the other failed,
	// leaving the halves temporarily out of sync.
	KindPartialWrite = "partial_write"

	// KindInternal indicates an unexpected failure not covered above.
	KindInternal = "internal"
)

// SummaryTypeDefault is the summary type stored for every memory at write
// time, in "kind_length" form. Other combinations are generated on demand.
const SummaryTypeDefault = "abstractive_medium"

// Summary kinds and lengths accepted by the summarizer.
var (
	// ValidSummaryKinds enumerates supported summarization strategies.
	ValidSummaryKinds = []string{"abstractive", "extractive", "query_focused"}

	// ValidSummaryLengths enumerates supported summary lengths.
	ValidSummaryLengths = []string{"short", "medium", "detailed"}
)

// NewID returns a fresh random identifier for memories and summaries.
func NewID() string {
	return uuid.New().String()
}

// Timestamp returns the current UTC time in RFC 3339 format. All persisted
// timestamps and envelope timestamps use this representation.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Topic groups related memory items under a shared name. The item count is
// maintained transactionally alongside memory writes; a topic whose count
// reaches zero is removed.
type Topic struct {
	Name        string `json:"name"`                  // Unique topic name (primary key)
	Description string `json:"description,omitempty"` // Optional free-text description
	ItemCount   int    `json:"item_count"`            // Number of memory items under this topic
	CreatedAt   string `json:"created_at"`            // RFC 3339 UTC creation time
	UpdatedAt   string `json:"updated_at"`            // RFC 3339 UTC last update time
}

// MemoryItem is the atomic unit of storage: a piece of content filed under
// a topic with optional tags. Version starts at 1 and increments on every
// successful update.
type MemoryItem struct {
	ID        string   `json:"id"`         // Unique identifier (UUID)
	Content   string   `json:"content"`    // Raw memory content
	Topic     string   `json:"topic"`      // Owning topic name
	Tags      []string `json:"tags"`       // User-defined tags (deduplicated)
	CreatedAt string   `json:"created_at"` // RFC 3339 UTC creation time
	UpdatedAt string   `json:"updated_at"` // RFC 3339 UTC last update time
	Version   int      `json:"version"`    // Monotonic version, starts at 1
}

// Summary is a condensed rendition of a memory item. A memory holds at most
// one summary per summary type; deleting the memory cascades to its summaries.
type Summary struct {
	ID          string `json:"id"`           // Unique identifier (UUID)
	MemoryID    string `json:"memory_id"`    // Owning memory item
	SummaryType string `json:"summary_type"` // Type identifier, e.g. "abstractive_medium"
	SummaryText string `json:"summary_text"` // The condensed text
	CreatedAt   string `json:"created_at"`   // RFC 3339 UTC creation time
	UpdatedAt   string `json:"updated_at"`   // RFC 3339 UTC last update time
}

// Response is the uniform envelope returned by every memory operation.
// It always carries "status" and "message"; success envelopes merge their
// payload at the top level, error envelopes nest detail under "error_details".
type Response map[string]interface{}

// OK builds a success envelope with the given message and merges data into
// the envelope at the top level.
func OK(message string, data map[string]interface{}) Response {
	r := Response{"status": StatusOK, "message": message}
	for k, v := range data {
		r[k] = v
	}
	return r
}

// Error builds an error envelope. The kind is always present under
// error_details.kind; any extra details are merged alongside it.
func Error(message, kind string, details map[string]interface{}) Response {
	ed := map[string]interface{}{"kind": kind}
	for k, v := range details {
		ed[k] = v
	}
	return Response{"status": StatusError, "message": message, "error_details": ed}
}

// IsError reports whether the envelope carries an error status.
func (r Response) IsError() bool {
	return r["status"] == StatusError
}

// ErrorKind returns the error kind of an error envelope, or "" for a
// success envelope.
func (r Response) ErrorKind() string {
	details, ok := r["error_details"].(map[string]interface{})
	if !ok {
		return ""
	}
	kind, _ := details["kind"].(string)
	return kind
}

// ValidateTags checks and normalizes a tag list. Empty tags and tags
// containing the reserved "," separator are rejected; duplicates are dropped
// keeping the first occurrence. A nil input yields an empty, non-nil slice
// so callers can marshal it as a JSON array.
func ValidateTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag == "" {
			return nil, fmt.Errorf("tags must not contain empty strings")
		}
		if strings.Contains(tag, ",") {
			return nil, fmt.Errorf("tag %q must not contain ','", tag)
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out, nil
}

// SummaryTypeID composes the stored summary type identifier from a kind
// and a length, e.g. ("abstractive", "medium") -> "abstractive_medium".
func SummaryTypeID(kind, length string) string {
	return kind + "_" + length
}

// IsValidSummaryKind checks if the given summarization kind is supported.
func IsValidSummaryKind(kind string) bool {
	for _, valid := range ValidSummaryKinds {
		if valid == kind {
			return true
		}
	}
	return false
}

// IsValidSummaryLength checks if the given summary length is supported.
func IsValidSummaryLength(length string) bool {
	for _, valid := range ValidSummaryLengths {
		if valid == length {
			return true
		}
	}
	return false
}
