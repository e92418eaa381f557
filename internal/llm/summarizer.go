package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/engram/pkg/types"
)

var (
	// ErrNotConfigured is returned when summarization is requested but no
	// text generation backend is configured (missing API key).
	ErrNotConfigured = errors.New("summarizer not configured")

	// ErrInvalidRequest is returned for malformed summarization requests:
	// unknown kind or length, or query_focused without a query.
	ErrInvalidRequest = errors.New("invalid summarization request")
)

// Summarizer turns text into summaries of a requested kind and length
// through a TextGenerator. A nil generator yields a summarizer that
// reports itself unavailable; every other memory operation keeps working.
type Summarizer struct {
	generator TextGenerator
}

// NewSummarizer creates a summarizer over the given generator. Passing nil
// is allowed and produces an unavailable summarizer.
func NewSummarizer(generator TextGenerator) *Summarizer {
	return &Summarizer{generator: generator}
}

// Available reports whether a text generation backend is configured.
func (s *Summarizer) Available() bool {
	return s.generator != nil
}

// Model returns the backing model name, or "" when unavailable.
func (s *Summarizer) Model() string {
	if s.generator == nil {
		return ""
	}
	return s.generator.GetModel()
}

// State reports the circuit breaker state of the backing generator, or ""
// when no generator is configured or it carries no breaker.
func (s *Summarizer) State() string {
	if reporter, ok := s.generator.(interface{ BreakerState() string }); ok {
		return reporter.BreakerState()
	}
	return ""
}

// Summarize produces a summary of text. Kind selects the strategy
// (abstractive, extractive, query_focused), length the verbosity (short,
// medium, detailed). The query is required for query_focused and ignored
// otherwise.
func (s *Summarizer) Summarize(ctx context.Context, text, kind, length, query string) (string, error) {
	if !types.IsValidSummaryKind(kind) {
		return "", fmt.Errorf("%w: unknown summary kind %q", ErrInvalidRequest, kind)
	}
	if !types.IsValidSummaryLength(length) {
		return "", fmt.Errorf("%w: unknown summary length %q", ErrInvalidRequest, length)
	}
	if kind == "query_focused" && query == "" {
		return "", fmt.Errorf("%w: query must be provided for query_focused summary type", ErrInvalidRequest)
	}
	if s.generator == nil {
		return "", ErrNotConfigured
	}

	return s.generator.Complete(ctx, systemPrompt(kind, length, query), userPrompt(text))
}
