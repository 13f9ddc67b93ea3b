// Package store defines the document/vector store contract shared by the remote and
// local backends and the fallback controller that arbitrates between them.
package store

import (
	"context"

	"github.com/noterag/noterag/internal/domain/note"
)

// Hit is a single similarity query match.
type Hit struct {
	Note  note.Note
	Score float64 // cosine similarity mapped to [0,1]
}

// DocStore is the common backend contract. Both the Redis-backed remote store and the
// in-process local store implement it; callers hold a DocStore and never a concrete
// backend, so substitution only changes latency and availability.
type DocStore interface {
	// Init completes backend setup (index creation, snapshot load). Every other
	// operation fails with domain.ErrNotInitialized until Init has succeeded.
	Init(ctx context.Context) error

	// Add idempotently upserts a note by id.
	Add(ctx context.Context, n note.Note) error

	// Update replaces text, metadata and (when non-nil) the vector of an existing
	// note. The local backend fails with domain.ErrNoteNotFound for unknown ids;
	// the remote backend upserts instead (documented backend-specific semantics).
	Update(ctx context.Context, n note.Note) error

	// Delete removes a note and its vector. Fails with domain.ErrNoteNotFound if absent.
	Delete(ctx context.Context, id string) error

	// Get returns a note by id, or domain.ErrNoteNotFound.
	Get(ctx context.Context, id string) (note.Note, error)

	// All returns every stored note, newest first.
	All(ctx context.Context) ([]note.Note, error)

	// Query returns up to limit notes whose cosine similarity to vector is at least
	// threshold, sorted by similarity descending.
	Query(ctx context.Context, vector []float32, limit int, threshold float64) ([]Hit, error)

	// Count returns the number of stored notes.
	Count(ctx context.Context) (int, error)

	// ListIDs returns the ids of all stored notes.
	ListIDs(ctx context.Context) ([]string, error)
}
