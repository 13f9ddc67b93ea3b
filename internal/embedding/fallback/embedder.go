// Package fallback chains a primary embedding provider with a deterministic
// local one so vectorization never hard-fails.
package fallback

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/domain"
)

var (
	_ domain.Embedder      = (*Embedder)(nil)
	_ domain.BatchEmbedder = (*Embedder)(nil)
)

// terminal combines the single and batch contracts; the deterministic local
// embedder satisfies it.
type terminal interface {
	domain.Embedder
	domain.BatchEmbedder
}

// Embedder tries the primary provider with a small retry budget, then falls back
// to the secondary. The secondary is expected to be infallible (the deterministic
// local embedder), so Embed only returns an error when it too fails.
type Embedder struct {
	primary   domain.Embedder
	batch     domain.BatchEmbedder // optional batch view of primary
	secondary terminal
	retries   int
	backoff   time.Duration
	logger    *zap.Logger
}

// Config holds the chain settings.
type Config struct {
	Primary   domain.Embedder
	Batch     domain.BatchEmbedder
	Secondary terminal
	Retries   int
	Backoff   time.Duration
	Logger    *zap.Logger
}

// New creates the fallback chain.
func New(cfg *Config) *Embedder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Embedder{
		primary:   cfg.Primary,
		batch:     cfg.Batch,
		secondary: cfg.Secondary,
		retries:   cfg.Retries,
		backoff:   backoff,
		logger:    logger,
	}
}

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return domain.EmbeddingResult{}, ctx.Err()
			case <-time.After(e.backoff * time.Duration(attempt)):
			}
		}
		result, err := e.primary.Embed(ctx, text)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	e.logger.Warn("primary embedder failed, using deterministic fallback",
		zap.Error(lastErr),
	)
	return e.secondary.Embed(ctx, text)
}

// BatchEmbed implements domain.BatchEmbedder. Items the primary failed to embed
// (nil vectors) get deterministic fallback vectors instead.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	var result domain.BatchEmbeddingResult
	if e.batch != nil {
		var err error
		result, err = e.batch.BatchEmbed(ctx, texts)
		if err != nil {
			e.logger.Warn("primary batch embed failed, using deterministic fallback",
				zap.Int("texts", len(texts)),
				zap.Error(err),
			)
			return e.secondary.BatchEmbed(ctx, texts)
		}
	}
	if result.Embeddings == nil {
		result.Embeddings = make([][]float32, len(texts))
	}

	for i, vec := range result.Embeddings {
		if vec != nil {
			continue
		}
		res, err := e.secondary.Embed(ctx, texts[i])
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		result.Embeddings[i] = res.Embedding
	}
	return result, nil
}
