package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/scrypster/engram/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator records the prompts it receives and returns a canned reply.
type fakeGenerator struct {
	system string
	user   string
	reply  string
	err    error
}

func (f *fakeGenerator) Complete(_ context.Context, system, user string) (string, error) {
	f.system = system
	f.user = user
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) GetModel() string { return "fake-model" }

func TestSummarizer_AbstractiveMediumPrompt(t *testing.T) {
	gen := &fakeGenerator{reply: "A summary."}
	s := llm.NewSummarizer(gen)

	out, err := s.Summarize(context.Background(), "Some long text.", "abstractive", "medium", "")
	require.NoError(t, err)
	assert.Equal(t, "A summary.", out)

	assert.Equal(t,
		"You are a highly skilled summarization AI. Your task is to provide a medium summary."+
			" The summary should be abstractive, meaning you should rephrase and synthesize the information."+
			" Ensure the summary is concise, accurate, and captures the main points."+
			" Aim for a summary of 3-5 sentences.",
		gen.system)
	assert.Equal(t, "Please summarize the following text:\n\nSome long text.", gen.user)
}

func TestSummarizer_ExtractiveShortPrompt(t *testing.T) {
	gen := &fakeGenerator{reply: "Key sentence."}
	s := llm.NewSummarizer(gen)

	_, err := s.Summarize(context.Background(), "text", "extractive", "short", "")
	require.NoError(t, err)

	assert.Contains(t, gen.system, "provide a short summary")
	assert.Contains(t, gen.system, "select key sentences directly from the text")
	assert.Contains(t, gen.system, "Keep the summary very brief, around 1-2 sentences.")
}

func TestSummarizer_QueryFocusedDetailedPrompt(t *testing.T) {
	gen := &fakeGenerator{reply: "Focused answer."}
	s := llm.NewSummarizer(gen)

	_, err := s.Summarize(context.Background(), "text", "query_focused", "detailed", "What are the challenges?")
	require.NoError(t, err)

	assert.Contains(t, gen.system, "focused on answering the following query: 'What are the challenges?'")
	assert.Contains(t, gen.system, "around 5-10 sentences")
}

func TestSummarizer_QueryFocusedRequiresQuery(t *testing.T) {
	s := llm.NewSummarizer(&fakeGenerator{})

	_, err := s.Summarize(context.Background(), "text", "query_focused", "medium", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrInvalidRequest))
}

func TestSummarizer_RejectsUnknownKind(t *testing.T) {
	s := llm.NewSummarizer(&fakeGenerator{})

	_, err := s.Summarize(context.Background(), "text", "freeform", "medium", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrInvalidRequest))
}

func TestSummarizer_RejectsUnknownLength(t *testing.T) {
	s := llm.NewSummarizer(&fakeGenerator{})

	_, err := s.Summarize(context.Background(), "text", "abstractive", "long", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrInvalidRequest))
}

func TestSummarizer_UnconfiguredBackend(t *testing.T) {
	s := llm.NewSummarizer(nil)

	assert.False(t, s.Available())
	assert.Equal(t, "", s.Model())

	_, err := s.Summarize(context.Background(), "text", "abstractive", "medium", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrNotConfigured))
}

func TestSummarizer_GeneratorFailurePropagates(t *testing.T) {
	backendErr := errors.New("backend down")
	s := llm.NewSummarizer(&fakeGenerator{err: backendErr})

	_, err := s.Summarize(context.Background(), "text", "abstractive", "medium", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, backendErr))
}

func TestSummarizer_ReportsModel(t *testing.T) {
	s := llm.NewSummarizer(&fakeGenerator{})

	assert.True(t, s.Available())
	assert.Equal(t, "fake-model", s.Model())
}
