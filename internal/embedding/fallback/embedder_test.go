package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/domain"
	embLocal "github.com/noterag/noterag/internal/embedding/local"
)

type mockPrimary struct {
	result domain.EmbeddingResult
	err    error
	calls  int

	batchResult domain.BatchEmbeddingResult
	batchErr    error
}

func (m *mockPrimary) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

func (m *mockPrimary) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	if m.batchResult.Embeddings != nil {
		return m.batchResult, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.result.Embedding
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

func newChain(primary *mockPrimary, retries int) *Embedder {
	return New(&Config{
		Primary:   primary,
		Batch:     primary,
		Secondary: embLocal.New(16),
		Retries:   retries,
		Backoff:   time.Millisecond,
		Logger:    zap.NewNop(),
	})
}

func TestEmbed_PrimarySucceeds(t *testing.T) {
	primary := &mockPrimary{result: domain.EmbeddingResult{Embedding: []float32{0.5}}}
	e := newChain(primary, 2)

	res, err := e.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embedding[0] != 0.5 {
		t.Fatalf("expected primary result, got %v", res.Embedding)
	}
	if primary.calls != 1 {
		t.Fatalf("expected 1 call, got %d", primary.calls)
	}
}

func TestEmbed_RetriesThenFallsBack(t *testing.T) {
	primary := &mockPrimary{err: errors.New("provider down")}
	e := newChain(primary, 2)

	res, err := e.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("expected deterministic fallback, got error: %v", err)
	}
	if primary.calls != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", primary.calls)
	}
	if len(res.Embedding) != 16 {
		t.Fatalf("expected 16-dim fallback vector, got %d", len(res.Embedding))
	}

	var nonZero bool
	for _, x := range res.Embedding {
		if x != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatal("expected non-zero fallback vector for non-empty text")
	}
}

func TestBatchEmbed_FillsFailedItems(t *testing.T) {
	primary := &mockPrimary{
		batchResult: domain.BatchEmbeddingResult{
			Embeddings: [][]float32{{0.1}, nil, {0.3}},
		},
	}
	e := newChain(primary, 0)

	res, err := e.BatchEmbed(context.Background(), []string{"a", "bbb", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(res.Embeddings))
	}
	if res.Embeddings[1] == nil {
		t.Fatal("expected nil item to be filled by fallback")
	}
	if len(res.Embeddings[1]) != 16 {
		t.Fatalf("expected 16-dim fallback vector, got %d", len(res.Embeddings[1]))
	}
	// Successful items keep the primary's vectors.
	if res.Embeddings[0][0] != 0.1 || res.Embeddings[2][0] != 0.3 {
		t.Fatalf("expected primary vectors preserved, got %v", res.Embeddings)
	}
}

func TestBatchEmbed_WholeBatchFallsBack(t *testing.T) {
	primary := &mockPrimary{batchErr: errors.New("provider down")}
	e := newChain(primary, 0)

	res, err := e.BatchEmbed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(res.Embeddings))
	}
	for i, vec := range res.Embeddings {
		if len(vec) != 16 {
			t.Fatalf("vector %d: expected fallback dimensions, got %d", i, len(vec))
		}
	}
}

func TestEmbed_ContextCancelledDuringBackoff(t *testing.T) {
	primary := &mockPrimary{err: errors.New("provider down")}
	e := New(&Config{
		Primary:   primary,
		Secondary: embLocal.New(16),
		Retries:   5,
		Backoff:   time.Minute,
		Logger:    zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Embed(ctx, "text"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
