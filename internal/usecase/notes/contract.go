package notes

import (
	"context"

	"github.com/noterag/noterag/internal/domain"
	"github.com/noterag/noterag/internal/domain/note"
	domsearch "github.com/noterag/noterag/internal/domain/search"
	"github.com/noterag/noterag/internal/store"
	"github.com/noterag/noterag/internal/store/fallback"
)

// Store defines the document storage contract for notes.
type Store interface {
	Add(ctx context.Context, n note.Note) error
	Update(ctx context.Context, n note.Note) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (note.Note, error)
	All(ctx context.Context) ([]note.Note, error)
	Count(ctx context.Context) (int, error)
	ListIDs(ctx context.Context) ([]string, error)
	Query(ctx context.Context, vector []float32, limit int, threshold float64) ([]store.Hit, error)
}

// ModeSource reports which storage backend currently serves traffic.
type ModeSource interface {
	Mode() fallback.Mode
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in one call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Searcher runs the ranked search pipeline.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]domsearch.Result, error)
}

// Deduplicator collapses duplicate create requests.
type Deduplicator interface {
	Do(key string, fn func() (any, error)) (value any, reused bool, err error)
}
