package search

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/domain"
	"github.com/noterag/noterag/internal/domain/note"
	"github.com/noterag/noterag/internal/store"
)

// mockEmbedder returns a fixed vector and records the last embedded text.
type mockEmbedder struct {
	vector []float32
	err    error

	calls     int
	lastInput string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	m.lastInput = text
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vector}, nil
}

// mockDocStore serves scripted candidates for Query and notes for All.
type mockDocStore struct {
	hits     []store.Hit
	queryErr error

	notes  []note.Note
	allErr error

	queryCalls int
	allCalls   int
}

func (m *mockDocStore) Query(context.Context, []float32, int, float64) ([]store.Hit, error) {
	m.queryCalls++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.hits, nil
}

func (m *mockDocStore) All(context.Context) ([]note.Note, error) {
	m.allCalls++
	if m.allErr != nil {
		return nil, m.allErr
	}
	return m.notes, nil
}

// mockExpander records whether expansion ran and substitutes a fixed query.
type mockExpander struct {
	expanded string
	calls    int
}

func (m *mockExpander) Expand(_ context.Context, query string) string {
	m.calls++
	if m.expanded == "" {
		return query
	}
	return m.expanded
}

func newTestEngine(t *testing.T, docs *mockDocStore, emb *mockEmbedder, cfg Config) *Engine {
	t.Helper()
	return NewEngine(emb, docs, nil, cfg, zap.NewNop())
}

func testNote(id, title, text string, ts int64) note.Note {
	return note.Reconstruct(id, text, title, "", ts, nil, nil)
}

func hit(n note.Note, score float64) store.Hit {
	return store.Hit{Note: n, Score: score}
}
