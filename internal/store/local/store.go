// Package local implements the in-process DocStore backend: notes held in memory,
// similarity by linear cosine scan, durability via a JSON snapshot file that is safe
// to inspect or delete by hand.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/domain"
	"github.com/noterag/noterag/internal/domain/note"
	"github.com/noterag/noterag/internal/store"
)

// Compile-time check: Store implements store.DocStore.
var _ store.DocStore = (*Store)(nil)

// snapshotDoc is the on-disk shape of a single note.
type snapshotDoc struct {
	Text      string    `json:"text"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Tags      []string  `json:"tags,omitempty"`
	Vector    []float32 `json:"vector,omitempty"`
}

// Store is the local backend. A zero snapshot path keeps it memory-only (tests).
type Store struct {
	mu          sync.RWMutex
	path        string
	notes       map[string]note.Note
	initialized bool
	logger      *zap.Logger
}

// New creates a local store persisting to snapshotPath after every mutation.
// Pass an empty path for a memory-only store.
func New(snapshotPath string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: snapshotPath, logger: logger}
}

// Init loads the snapshot file if present. A missing or corrupt snapshot starts the
// store empty rather than failing: the snapshot is a cache of last known-good state,
// not a source of truth.
func (s *Store) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	s.notes = make(map[string]note.Note)

	if s.path != "" {
		if err := s.loadSnapshot(); err != nil {
			s.logger.Warn("Failed to load snapshot, starting empty",
				zap.String("path", s.path), zap.Error(err))
			s.notes = make(map[string]note.Note)
		}
	}

	s.initialized = true
	return nil
}

// Add idempotently upserts a note by id.
func (s *Store) Add(_ context.Context, n note.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return domain.ErrNotInitialized
	}

	s.notes[n.ID()] = n
	return s.persistLocked()
}

// Update replaces an existing note. Unknown ids fail with domain.ErrNoteNotFound.
func (s *Store) Update(_ context.Context, n note.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return domain.ErrNotInitialized
	}
	if _, ok := s.notes[n.ID()]; !ok {
		return domain.ErrNoteNotFound
	}

	s.notes[n.ID()] = n
	return s.persistLocked()
}

// Delete removes a note, or fails with domain.ErrNoteNotFound.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return domain.ErrNotInitialized
	}
	if _, ok := s.notes[id]; !ok {
		return domain.ErrNoteNotFound
	}

	delete(s.notes, id)
	return s.persistLocked()
}

// Get returns a note by id.
func (s *Store) Get(_ context.Context, id string) (note.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return note.Note{}, domain.ErrNotInitialized
	}
	n, ok := s.notes[id]
	if !ok {
		return note.Note{}, domain.ErrNoteNotFound
	}
	return n, nil
}

// All returns every note, newest first.
func (s *Store) All(_ context.Context) ([]note.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, domain.ErrNotInitialized
	}

	notes := make([]note.Note, 0, len(s.notes))
	for _, n := range s.notes {
		notes = append(notes, n)
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].Timestamp() > notes[j].Timestamp()
	})
	return notes, nil
}

// Query scans every stored vector and returns the top matches by cosine similarity.
// Linear scan is deliberate: the collection is thousands of notes, not millions.
func (s *Store) Query(_ context.Context, vector []float32, limit int, threshold float64) ([]store.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, domain.ErrNotInitialized
	}
	if limit <= 0 {
		return nil, nil
	}

	hits := make([]store.Hit, 0, limit)
	for _, n := range s.notes {
		if len(n.Vector()) == 0 {
			continue
		}
		score := domain.CosineSimilarity(vector, n.Vector())
		if score >= threshold {
			hits = append(hits, store.Hit{Note: n, Score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Note.Timestamp() > hits[j].Note.Timestamp()
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count returns the number of stored notes.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return 0, domain.ErrNotInitialized
	}
	return len(s.notes), nil
}

// ListIDs returns the ids of all stored notes.
func (s *Store) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, domain.ErrNotInitialized
	}

	ids := make([]string, 0, len(s.notes))
	for id := range s.notes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// --- Snapshot persistence ---

func (s *Store) loadSnapshot() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}

	var docs map[string]snapshotDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}

	for id, d := range docs {
		s.notes[id] = note.Reconstruct(id, d.Text, d.Title, d.URL, d.Timestamp, d.Tags, d.Vector)
	}

	s.logger.Info("Loaded local snapshot",
		zap.String("path", s.path), zap.Int("notes", len(s.notes)))
	return nil
}

// persistLocked writes the snapshot after every mutation so degraded-mode writes
// always have a durable record. Write-temp-then-rename keeps the file whole even if
// the process dies mid-write.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	docs := make(map[string]snapshotDoc, len(s.notes))
	for id, n := range s.notes {
		docs[id] = snapshotDoc{
			Text:      n.Text(),
			Title:     n.Title(),
			URL:       n.URL(),
			Timestamp: n.Timestamp(),
			Tags:      n.Tags(),
			Vector:    n.Vector(),
		}
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
