// Package vector provides the semantic capability consumed by gap
// detection, scoring, and suggestion validation, plus a persistent vector
// index for vault notes.
package vector

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Embedder produces embedding vectors for texts. llm.Provider satisfies
// this, so any configured provider doubles as the embedding capability.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Similarity is the semantic port. Implementations return values in [0,1].
// Failures are surfaced as errors; callers translate them into "similarity
// unknown" rather than aborting a run.
type Similarity interface {
	// Pairwise returns the semantic similarity of two texts.
	Pairwise(ctx context.Context, a, b string) (float64, error)
	// Coherence returns how well a text fits a surrounding context.
	Coherence(ctx context.Context, text string, contexts []string) (float64, error)
}

// EmbeddingSimilarity implements Similarity by embedding texts and
// comparing them with cosine similarity. Embeddings are cached per text for
// the lifetime of the value, which matches one analysis run.
type EmbeddingSimilarity struct {
	embedder Embedder

	mu    sync.Mutex
	cache map[string][]float32
}

// NewEmbeddingSimilarity wraps an embedder.
func NewEmbeddingSimilarity(e Embedder) *EmbeddingSimilarity {
	return &EmbeddingSimilarity{embedder: e, cache: make(map[string][]float32)}
}

// Pairwise embeds both texts and returns their cosine similarity mapped to
// [0,1].
func (s *EmbeddingSimilarity) Pairwise(ctx context.Context, a, b string) (float64, error) {
	vecs, err := s.embedAll(ctx, []string{a, b})
	if err != nil {
		return 0, err
	}
	return normalize(Cosine(vecs[0], vecs[1])), nil
}

// Coherence compares a text against the centroid of its context texts.
func (s *EmbeddingSimilarity) Coherence(ctx context.Context, text string, contexts []string) (float64, error) {
	if len(contexts) == 0 {
		return 0, fmt.Errorf("vector: coherence requires context texts")
	}
	vecs, err := s.embedAll(ctx, append([]string{text}, contexts...))
	if err != nil {
		return 0, err
	}
	centroid := make([]float32, len(vecs[0]))
	for _, v := range vecs[1:] {
		for i := range centroid {
			if i < len(v) {
				centroid[i] += v[i]
			}
		}
	}
	n := float32(len(vecs) - 1)
	for i := range centroid {
		centroid[i] /= n
	}
	return normalize(Cosine(vecs[0], centroid)), nil
}

// embedAll resolves embeddings through the cache, calling the embedder only
// for texts not seen before.
func (s *EmbeddingSimilarity) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	s.mu.Lock()
	for i, t := range texts {
		if v, ok := s.cache[t]; ok {
			out[i] = v
		} else {
			missing = append(missing, t)
			missingIdx = append(missingIdx, i)
		}
	}
	s.mu.Unlock()

	if len(missing) > 0 {
		vecs, err := s.embedder.Embed(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("embedding: %w", err)
		}
		if len(vecs) != len(missing) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(missing))
		}
		s.mu.Lock()
		for i, v := range vecs {
			s.cache[missing[i]] = v
			out[missingIdx[i]] = v
		}
		s.mu.Unlock()
	}
	return out, nil
}

// Cosine returns the raw cosine similarity of two vectors in [-1,1].
// Mismatched lengths compare the common prefix; zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// normalize clamps a cosine value into the [0,1] range used by scoring.
func normalize(cos float64) float64 {
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}

var _ Similarity = (*EmbeddingSimilarity)(nil)
