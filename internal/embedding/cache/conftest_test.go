package cache

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/domain"
)

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int

	batchResult domain.BatchEmbeddingResult
	batchErr    error
	batchCalls  int
	lastBatch   []string
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	m.lastBatch = texts
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	if m.batchResult.Embeddings != nil {
		return m.batchResult, nil
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i := range texts {
		out.Embeddings[i] = m.result.Embedding
	}
	return out, nil
}

func newTestFile(t *testing.T, flushEvery int) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.json")
	return NewFile(path, flushEvery, zap.NewNop())
}

func newTestCachedEmbedder(t *testing.T, inner *mockEmbedder) (*CachedEmbedder, *File) {
	t.Helper()
	f := newTestFile(t, 1)
	if err := f.Load(); err != nil {
		t.Fatalf("load cache: %v", err)
	}
	ce := New(inner, f, "openai", "test-model", nil, zap.NewNop())
	return ce, f
}
