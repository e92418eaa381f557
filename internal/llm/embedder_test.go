package llm_test

import (
	"context"
	"math"
	"testing"

	"github.com/scrypster/engram/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e := llm.NewLocalEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "The quick brown fox jumps over the lazy dog")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "The quick brown fox jumps over the lazy dog")
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical text must produce identical vectors")
}

func TestLocalEmbedder_Dimensions(t *testing.T) {
	e := llm.NewLocalEmbedder()

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	assert.Len(t, vec, e.Dimensions())
	assert.Equal(t, 256, e.Dimensions())
}

func TestLocalEmbedder_Normalized(t *testing.T) {
	e := llm.NewLocalEmbedder()

	vec, err := e.Embed(context.Background(), "vectors should have unit length after normalization")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestLocalEmbedder_EmptyText(t *testing.T) {
	e := llm.NewLocalEmbedder()

	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		require.False(t, math.IsNaN(float64(v)), "vector must not contain NaN")
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5, "empty text still embeds to a unit vector")
}

// TestLocalEmbedder_OverlapScoresHigher verifies the retrieval property the
// engine depends on: text sharing tokens with a query scores above text
// sharing none.
func TestLocalEmbedder_OverlapScoresHigher(t *testing.T) {
	e := llm.NewLocalEmbedder()
	ctx := context.Background()

	query, err := e.Embed(ctx, "alpha beta gamma delta")
	require.NoError(t, err)
	overlapping, err := e.Embed(ctx, "alpha beta gamma delta epsilon")
	require.NoError(t, err)
	disjoint, err := e.Embed(ctx, "zeta eta theta iota kappa")
	require.NoError(t, err)

	assert.Greater(t, cosine(query, overlapping), cosine(query, disjoint))
}

func TestLocalEmbedder_CaseInsensitive(t *testing.T) {
	e := llm.NewLocalEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "Distributed Systems")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "distributed systems")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
