package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// localEmbedderDims is the fixed vector width of the LocalEmbedder.
const localEmbedderDims = 256

// LocalEmbedder is a deterministic feature-hashing embedder: each token is
// FNV-hashed into one of a fixed number of buckets with a hash-derived sign,
// and the resulting vector is L2-normalized. It needs no external service
// and produces stable vectors for identical text, which is exactly what the
// store/retrieve round trip requires. Quality-sensitive deployments can
// swap in OpenRouterEmbeddingClient through the same interface.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder creates a feature-hashing embedder with the default
// 256-dimension width.
func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{dims: localEmbedderDims}
}

// Embed converts text into a normalized feature-hash vector. It never
// returns an all-zero vector so cosine scoring stays well defined.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		vec[0] = 1
		return vec, nil
	}

	for _, token := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()
		bucket := sum % uint32(e.dims)
		if sum&0x80000000 != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		// Opposing signs cancelled every bucket. Rare but possible.
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}

	return vec, nil
}

// Dimensions returns the fixed vector width.
func (e *LocalEmbedder) Dimensions() int {
	return e.dims
}

// GetModel returns the identifier of the hashing scheme.
func (e *LocalEmbedder) GetModel() string {
	return "feature-hash-256"
}

// tokenize lowercases the text and splits it on anything that is not a
// letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Compile-time assertion.
var _ EmbeddingGenerator = (*LocalEmbedder)(nil)
