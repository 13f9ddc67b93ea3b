// Package notes implements the note capture and retrieval use cases on top of
// the embedding chain, the search engine, and the tiered document store.
package notes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/domain"
	"github.com/noterag/noterag/internal/domain/note"
	domsearch "github.com/noterag/noterag/internal/domain/search"
	"github.com/noterag/noterag/internal/metrics"
	"github.com/noterag/noterag/internal/store/fallback"
)

// Service handles note CRUD with automatic vectorization and duplicate suppression.
type Service struct {
	store    Store
	mode     ModeSource
	embedder Embedder
	batch    BatchEmbedder
	searcher Searcher
	dedupe   Deduplicator
	logger   *zap.Logger

	defaultSearchLimit int
	maxSearchLimit     int
	now                func() time.Time
}

// New creates a note service.
func New(
	st Store,
	mode ModeSource,
	embedder Embedder,
	batch BatchEmbedder,
	searcher Searcher,
	dedupe Deduplicator,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:              st,
		mode:               mode,
		embedder:           embedder,
		batch:              batch,
		searcher:           searcher,
		dedupe:             dedupe,
		logger:             logger,
		defaultSearchLimit: 10,
		maxSearchLimit:     50,
		now:                time.Now,
	}
}

// CreateInput carries the caller-provided note fields.
type CreateInput struct {
	Text      string
	Title     string
	URL       string
	Timestamp int64 // epoch millis; zero means "now"
	Tags      []string
}

// CreateNote captures a note: embeds its text and stores it. Identical
// {title, text} submissions within the dedup window resolve to the same stored
// note instead of creating a duplicate; reused reports that case.
func (s *Service) CreateNote(ctx context.Context, in CreateInput) (n note.Note, reused bool, err error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return note.Note{}, false, fmt.Errorf("note text must not be empty: %w", domain.ErrValidation)
	}
	if len(text) > note.MaxTextSize {
		return note.Note{}, false, fmt.Errorf("note text exceeds %d bytes: %w", note.MaxTextSize, domain.ErrValidation)
	}

	key := contentSignature(in.Title, text)
	value, reused, err := s.dedupe.Do(key, func() (any, error) {
		created, createErr := s.create(ctx, in, text)
		if createErr != nil {
			return nil, createErr
		}
		return created, nil
	})
	if err != nil {
		return note.Note{}, false, err
	}
	if reused {
		metrics.DedupeHitsTotal.Inc()
	}

	stored, ok := value.(note.Note)
	if !ok {
		return note.Note{}, false, fmt.Errorf("unexpected dedupe value type %T", value)
	}
	return stored, reused, nil
}

func (s *Service) create(ctx context.Context, in CreateInput, text string) (note.Note, error) {
	ts := in.Timestamp
	if ts <= 0 {
		ts = s.now().UnixMilli()
	}

	n, err := note.New(newNoteID(ts), text, in.Title, in.URL, ts, in.Tags)
	if err != nil {
		return note.Note{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	result, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return note.Note{}, fmt.Errorf("vectorize note: %w", err)
	}
	n.SetVector(result.Embedding)

	if err := s.store.Add(ctx, n); err != nil {
		return note.Note{}, fmt.Errorf("store note: %w", err)
	}
	return n, nil
}

// GetNote returns a note by id.
func (s *Service) GetNote(ctx context.Context, id string) (note.Note, error) {
	if strings.TrimSpace(id) == "" {
		return note.Note{}, fmt.Errorf("note id must not be empty: %w", domain.ErrValidation)
	}
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return note.Note{}, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// ListNotes returns all notes, newest first.
func (s *Service) ListNotes(ctx context.Context) ([]note.Note, error) {
	notes, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}

// DeleteNote removes a note by id.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("note id must not be empty: %w", domain.ErrValidation)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// UpdateInput carries replacement fields for an existing note. Nil pointers keep
// the stored value.
type UpdateInput struct {
	Text  *string
	Title *string
	URL   *string
	Tags  []string
}

// UpdateNote mutates a note in place. The embedding is recomputed only when the
// text actually changed.
func (s *Service) UpdateNote(ctx context.Context, id string, in UpdateInput) (note.Note, error) {
	if strings.TrimSpace(id) == "" {
		return note.Note{}, fmt.Errorf("note id must not be empty: %w", domain.ErrValidation)
	}

	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return note.Note{}, fmt.Errorf("get note: %w", err)
	}

	text := existing.Text()
	if in.Text != nil {
		text = strings.TrimSpace(*in.Text)
		if text == "" {
			return note.Note{}, fmt.Errorf("note text must not be empty: %w", domain.ErrValidation)
		}
	}
	title := existing.Title()
	if in.Title != nil {
		title = *in.Title
	}
	url := existing.URL()
	if in.URL != nil {
		url = *in.URL
	}
	tags := existing.Tags()
	if in.Tags != nil {
		tags = in.Tags
	}

	vector := existing.Vector()
	if text != existing.Text() {
		result, embErr := s.embedder.Embed(ctx, text)
		if embErr != nil {
			return note.Note{}, fmt.Errorf("vectorize note: %w", embErr)
		}
		vector = result.Embedding
	}

	updated := note.Reconstruct(id, text, title, url, existing.Timestamp(), tags, vector)
	if err := s.store.Update(ctx, updated); err != nil {
		return note.Note{}, fmt.Errorf("update note: %w", err)
	}
	return updated, nil
}

// SearchNotes runs the hybrid search pipeline. A zero limit uses the default.
func (s *Service) SearchNotes(ctx context.Context, query string, limit int) ([]domsearch.Result, error) {
	if limit <= 0 {
		limit = s.defaultSearchLimit
	}
	if limit > s.maxSearchLimit {
		limit = s.maxSearchLimit
	}

	results, err := s.searcher.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	return results, nil
}

// CountNotes returns the number of stored notes.
func (s *Service) CountNotes(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count notes: %w", err)
	}
	return n, nil
}

// CurrentMode reports whether the primary or the degraded backend is serving.
func (s *Service) CurrentMode() fallback.Mode {
	return s.mode.Mode()
}

// RefreshEmbeddings recomputes vectors for notes that have none, in one batch
// call. Notes whose item failed within the batch are skipped and reported.
func (s *Service) RefreshEmbeddings(ctx context.Context) (updated, failed int, err error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list notes: %w", err)
	}

	var pending []note.Note
	for _, n := range all {
		if len(n.Vector()) == 0 {
			pending = append(pending, n)
		}
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	texts := make([]string, len(pending))
	for i, n := range pending {
		texts[i] = n.Text()
	}

	result, err := s.batch.BatchEmbed(ctx, texts)
	if err != nil {
		return 0, 0, fmt.Errorf("batch vectorize: %w", err)
	}

	for i, n := range pending {
		if i >= len(result.Embeddings) || result.Embeddings[i] == nil {
			failed++
			continue
		}
		n.SetVector(result.Embeddings[i])
		if updErr := s.store.Update(ctx, n); updErr != nil {
			s.logger.Warn("failed to persist refreshed embedding",
				zap.String("id", n.ID()), zap.Error(updErr))
			failed++
			continue
		}
		updated++
	}
	return updated, failed, nil
}

// newNoteID builds ids in the form note_<millis>_<uuid8>.
func newNoteID(ts int64) string {
	return fmt.Sprintf("note_%d_%s", ts, uuid.NewString()[:8])
}

// contentSignature hashes the logical note content for the dedup window.
func contentSignature(title, text string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(title)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
