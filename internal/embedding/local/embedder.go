// Package local is a deterministic in-process embedding provider. It never fails
// and needs no network, which makes it the terminal fallback in the embedder chain.
package local

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/noterag/noterag/internal/domain"
)

var (
	_ domain.Embedder      = (*Embedder)(nil)
	_ domain.BatchEmbedder = (*Embedder)(nil)
)

// Embedder derives a fixed-width vector from character frequencies and token shape.
// The same input always yields the same vector, so cosine similarity over its output
// is stable across restarts.
type Embedder struct {
	dimensions int
}

// New creates a deterministic embedder producing vectors of the given width.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &Embedder{dimensions: dimensions}
}

// Dimensions reports the vector width.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed implements domain.Embedder. Empty or whitespace-only input yields a zero vector.
func (e *Embedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: e.vectorize(text)}, nil
}

// BatchEmbed implements domain.BatchEmbedder. It cannot fail per item.
func (e *Embedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := domain.BatchEmbeddingResult{
		Embeddings: make([][]float32, len(texts)),
	}
	for i, t := range texts {
		out.Embeddings[i] = e.vectorize(t)
	}
	return out, nil
}

// vectorize folds lowercase character frequencies into the first part of the vector
// and token-length distribution into the tail, then normalizes to unit length.
func (e *Embedder) vectorize(text string) []float32 {
	v := make([]float32, e.dimensions)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return v
	}
	lower := strings.ToLower(trimmed)

	// Character frequency features over roughly the first three quarters of the vector.
	charSpan := e.dimensions * 3 / 4
	if charSpan < 1 {
		charSpan = e.dimensions
	}
	for _, r := range lower {
		if unicode.IsSpace(r) {
			continue
		}
		v[int(r)%charSpan]++
	}

	// Token shape features in the remaining slots: capped token length per bucket.
	if charSpan < e.dimensions {
		shapeSpan := e.dimensions - charSpan
		for i, tok := range strings.Fields(lower) {
			length := len(tok)
			if length > 16 {
				length = 16
			}
			v[charSpan+i%shapeSpan] += float32(length)
		}
	}

	normalize(v)
	return v
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
