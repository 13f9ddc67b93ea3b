package notes

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/dedupe"
	"github.com/noterag/noterag/internal/domain"
	"github.com/noterag/noterag/internal/domain/note"
	domsearch "github.com/noterag/noterag/internal/domain/search"
	"github.com/noterag/noterag/internal/store"
	"github.com/noterag/noterag/internal/store/fallback"
)

// mockStore keeps notes in a map and counts mutating calls.
type mockStore struct {
	notes map[string]note.Note

	addErr    error
	getErr    error
	updateErr error

	addCalls    int
	updateCalls int
}

func newMockStore() *mockStore {
	return &mockStore{notes: make(map[string]note.Note)}
}

func (m *mockStore) Add(_ context.Context, n note.Note) error {
	m.addCalls++
	if m.addErr != nil {
		return m.addErr
	}
	m.notes[n.ID()] = n
	return nil
}

func (m *mockStore) Update(_ context.Context, n note.Note) error {
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.notes[n.ID()]; !ok {
		return domain.ErrNoteNotFound
	}
	m.notes[n.ID()] = n
	return nil
}

func (m *mockStore) Delete(_ context.Context, id string) error {
	if _, ok := m.notes[id]; !ok {
		return domain.ErrNoteNotFound
	}
	delete(m.notes, id)
	return nil
}

func (m *mockStore) Get(_ context.Context, id string) (note.Note, error) {
	if m.getErr != nil {
		return note.Note{}, m.getErr
	}
	n, ok := m.notes[id]
	if !ok {
		return note.Note{}, domain.ErrNoteNotFound
	}
	return n, nil
}

func (m *mockStore) All(context.Context) ([]note.Note, error) {
	out := make([]note.Note, 0, len(m.notes))
	for _, n := range m.notes {
		out = append(out, n)
	}
	return out, nil
}

func (m *mockStore) Count(context.Context) (int, error) {
	return len(m.notes), nil
}

func (m *mockStore) ListIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.notes))
	for id := range m.notes {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockStore) Query(context.Context, []float32, int, float64) ([]store.Hit, error) {
	return nil, nil
}

// mockEmbedder returns a fixed vector and counts calls.
type mockEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vector}, nil
}

// mockBatchEmbedder serves scripted per-item results.
type mockBatchEmbedder struct {
	embeddings [][]float32
	err        error
	calls      int
	lastTexts  []string
}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.calls++
	m.lastTexts = texts
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	return domain.BatchEmbeddingResult{Embeddings: m.embeddings}, nil
}

// mockSearcher records the limit it was asked for.
type mockSearcher struct {
	results   []domsearch.Result
	err       error
	lastLimit int
}

func (m *mockSearcher) Search(_ context.Context, _ string, limit int) ([]domsearch.Result, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

type fixedMode struct {
	mode fallback.Mode
}

func (f fixedMode) Mode() fallback.Mode { return f.mode }

type testService struct {
	svc      *Service
	store    *mockStore
	embedder *mockEmbedder
	batch    *mockBatchEmbedder
	searcher *mockSearcher
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	st := newMockStore()
	emb := &mockEmbedder{vector: []float32{0.1, 0.2}}
	batch := &mockBatchEmbedder{}
	searcher := &mockSearcher{}
	svc := New(st, fixedMode{fallback.ModePrimary}, emb, batch, searcher,
		dedupe.New(10*time.Second), zap.NewNop())
	return &testService{svc: svc, store: st, embedder: emb, batch: batch, searcher: searcher}
}
