package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/noterag/noterag/internal/db"
	"github.com/noterag/noterag/internal/domain/note"
)

var errDown = fmt.Errorf("%w: dial tcp: connection refused", db.ErrUnavailable)

// mockBackend records calls and serves scripted documents keyed by Redis key.
type mockBackend struct {
	docs map[string][]byte

	indexExists bool
	createdDefs []*db.IndexDefinition

	setErr    error
	getErr    error
	existsErr error
	searchErr error

	knnResult *db.SearchResult
	lastKNN   *db.KNNQuery
}

func newMockBackend() *mockBackend {
	return &mockBackend{docs: make(map[string][]byte)}
}

func (m *mockBackend) JSONSet(_ context.Context, key, _ string, data []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.docs[key] = data
	return nil
}

func (m *mockBackend) JSONGet(_ context.Context, key string, _ ...string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.docs[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	// JSON.GET with a "$" path wraps the document in an array.
	return append(append([]byte("["), data...), ']'), nil
}

func (m *mockBackend) Del(_ context.Context, key string) error {
	delete(m.docs, key)
	return nil
}

func (m *mockBackend) Exists(_ context.Context, key string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.docs[key]
	return ok, nil
}

func (m *mockBackend) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.createdDefs = append(m.createdDefs, def)
	return nil
}

func (m *mockBackend) IndexExists(_ context.Context, _ string) (bool, error) {
	return m.indexExists, nil
}

func (m *mockBackend) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.lastKNN = q
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.knnResult, nil
}

func (m *mockBackend) SearchList(_ context.Context, _, _ string, offset, limit int, _ []string) (*db.SearchResult, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}

	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		keys = append(keys, k)
	}
	if offset >= len(keys) {
		return &db.SearchResult{Total: len(keys)}, nil
	}
	end := offset + limit
	if end > len(keys) {
		end = len(keys)
	}

	result := &db.SearchResult{Total: len(keys)}
	for _, k := range keys[offset:end] {
		result.Entries = append(result.Entries, db.SearchEntry{
			Key:    k,
			Fields: map[string]string{"$": string(m.docs[k])},
		})
	}
	return result, nil
}

func (m *mockBackend) SearchCount(_ context.Context, _, _ string) (int, error) {
	if m.searchErr != nil {
		return 0, m.searchErr
	}
	return len(m.docs), nil
}

// entryFor builds a KNN search entry for a stored note.
func entryFor(t *testing.T, key string, n note.Note, score float64) db.SearchEntry {
	t.Helper()
	data, err := json.Marshal(jsonDoc{
		Text:      n.Text(),
		Title:     n.Title(),
		Timestamp: n.Timestamp(),
		Vector:    n.Vector(),
	})
	if err != nil {
		t.Fatalf("marshal doc: %v", err)
	}
	return db.SearchEntry{
		Key:    key,
		Score:  score,
		Fields: map[string]string{"$": string(data)},
	}
}

func newTestStore(t *testing.T, b *mockBackend) *Store {
	t.Helper()
	s := New(b, Config{VectorDim: 4, HNSWM: 16, EFConstruct: 200})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func testNote(id string, ts int64) note.Note {
	return note.Reconstruct(id, "text of "+id, "title", "", ts, nil, []float32{1, 0, 0, 0})
}
