package fallback

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/domain"
	"github.com/noterag/noterag/internal/domain/note"
	"github.com/noterag/noterag/internal/store"
)

var errConn = fmt.Errorf("%w: connection refused", domain.ErrConnectivity)

// mockStore is a scriptable DocStore for controller tests.
type mockStore struct {
	initErr error
	addErr  error
	getErr  error

	initCalls int
	addCalls  int

	notes map[string]note.Note
}

func newMockStore() *mockStore {
	return &mockStore{notes: make(map[string]note.Note)}
}

func (m *mockStore) Init(context.Context) error {
	m.initCalls++
	return m.initErr
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
	if m.addErr != nil {
		return m.addErr
	}
	m.notes[n.ID()] = n
	return nil
}

func (m *mockStore) Delete(_ context.Context, id string) error {
	if m.addErr != nil {
		return m.addErr
	}
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

func (m *mockStore) Query(context.Context, []float32, int, float64) ([]store.Hit, error) {
	return nil, nil
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

func newTestController(t *testing.T, primary, local *mockStore) *Controller {
	t.Helper()
	return New(primary, local, zap.NewNop(), nil)
}

func testNote(id string) note.Note {
	return note.Reconstruct(id, "text", "title", "", 1, nil, nil)
}
