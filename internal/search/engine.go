// Package search implements the hybrid ranking pipeline: vector similarity blended
// with keyword overlap, dynamic thresholds, and technical-term boosting.
package search

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/noterag/noterag/internal/domain"
	"github.com/noterag/noterag/internal/domain/note"
	domsearch "github.com/noterag/noterag/internal/domain/search"
	"github.com/noterag/noterag/internal/metrics"
	"github.com/noterag/noterag/internal/store"
)

// docStore is the consumer interface for candidate retrieval (ISP).
type docStore interface {
	Query(ctx context.Context, vector []float32, limit int, threshold float64) ([]store.Hit, error)
	All(ctx context.Context) ([]note.Note, error)
}

// Expander widens short queries with related terms, best-effort.
type Expander interface {
	Expand(ctx context.Context, query string) string
}

// Config holds the ranking weights and thresholds.
type Config struct {
	VectorWeight      float64
	KeywordWeight     float64
	DefaultThreshold  float64
	ShortThreshold    float64 // queries of ShortQueryLen characters or fewer
	MediumThreshold   float64 // queries of MediumQueryLen characters or fewer
	ShortQueryLen     int
	MediumQueryLen    int
	BoostFactor       float64
	TechTerms         []string
	KeywordTermWeight float64
}

// DefaultConfig returns the standard ranking parameters.
func DefaultConfig() Config {
	return Config{
		VectorWeight:      0.7,
		KeywordWeight:     0.3,
		DefaultThreshold:  0.20,
		ShortThreshold:    0.08,
		MediumThreshold:   0.12,
		ShortQueryLen:     3,
		MediumQueryLen:    6,
		BoostFactor:       1.5,
		KeywordTermWeight: 0.1,
	}
}

// Engine orchestrates query embedding, backend similarity query, keyword scoring,
// and re-ranking. On embedding or backend failure it degrades to a pure keyword
// scan so search stays available.
type Engine struct {
	embedder domain.Embedder
	docs     docStore
	expander Expander // nil disables expansion
	cfg      Config
	logger   *zap.Logger
}

// NewEngine creates a search engine.
func NewEngine(embedder domain.Embedder, docs docStore, exp Expander, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		embedder: embedder,
		docs:     docs,
		expander: exp,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search runs the hybrid pipeline and returns up to limit ranked results.
// An empty query lists all notes newest first rather than erroring.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]domsearch.Result, error) {
	if limit <= 0 {
		return nil, nil
	}

	raw := strings.TrimSpace(query)
	if raw == "" {
		return e.listAll(ctx, limit)
	}

	start := time.Now()

	results, err := e.hybrid(ctx, raw, limit)
	if err != nil {
		e.logger.Warn("hybrid search failed, falling back to keyword scan",
			zap.String("query", raw), zap.Error(err))
		return e.keywordScan(ctx, raw, limit)
	}

	metrics.SearchRequestsTotal.WithLabelValues("hybrid").Inc()
	metrics.SearchDuration.WithLabelValues("hybrid").Observe(time.Since(start).Seconds())
	return results, nil
}

func (e *Engine) hybrid(ctx context.Context, raw string, limit int) ([]domsearch.Result, error) {
	effective := raw
	if e.expander != nil && len(tokenize(raw)) < expansionTokenLimit {
		effective = e.expander.Expand(ctx, raw)
	}

	embRes, err := e.embedder.Embed(ctx, effective)
	if err != nil {
		return nil, err
	}

	// Over-fetch so keyword re-ranking has room to reorder before truncation.
	hits, err := e.docs.Query(ctx, embRes.Embedding, limit*2, 0)
	if err != nil {
		return nil, err
	}

	terms := keywordTerms(effective)
	threshold := e.thresholdFor(raw)
	boostTerms := e.matchingTechTerms(raw)

	results := make([]domsearch.Result, 0, len(hits))
	for _, hit := range hits {
		keywordScore, matched := e.keywordScore(hit.Note, terms)
		combined := hit.Score*e.cfg.VectorWeight + keywordScore*e.cfg.KeywordWeight

		boosted := false
		if len(boostTerms) > 0 && containsAnyTerm(hit.Note, boostTerms) {
			combined *= e.cfg.BoostFactor
			boosted = true
		}
		if combined > 1.0 {
			combined = 1.0
		}
		if combined < threshold {
			continue
		}

		results = append(results, domsearch.NewResult(hit.Note, combined, domsearch.MatchDetails{
			VectorScore:     hit.Score,
			KeywordScore:    keywordScore,
			MatchedKeywords: matched,
			Boosted:         boosted,
		}))
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// keywordScore sums occurrences of each term in the note text and title,
// weighted per occurrence. A term-frequency signal, not IDF.
func (e *Engine) keywordScore(n note.Note, terms []string) (float64, []string) {
	if len(terms) == 0 {
		return 0, nil
	}

	haystack := n.Title() + " " + n.Text()
	var score float64
	var matched []string
	for _, term := range terms {
		occ := countOccurrences(haystack, term)
		if occ == 0 {
			continue
		}
		score += float64(occ) * e.cfg.KeywordTermWeight
		matched = append(matched, term)
	}
	if score > 1.0 {
		score = 1.0
	}
	return score, matched
}

// thresholdFor picks the minimum combined score by raw query length in
// characters, not bytes. Short queries produce noisier vector similarity, so
// they get a lower bar.
func (e *Engine) thresholdFor(raw string) float64 {
	switch n := utf8.RuneCountInString(raw); {
	case n <= e.cfg.ShortQueryLen:
		return e.cfg.ShortThreshold
	case n <= e.cfg.MediumQueryLen:
		return e.cfg.MediumThreshold
	default:
		return e.cfg.DefaultThreshold
	}
}

// matchingTechTerms returns the configured technical terms present in the raw
// query as an exact token or phrase match.
func (e *Engine) matchingTechTerms(raw string) []string {
	if len(e.cfg.TechTerms) == 0 {
		return nil
	}

	lower := strings.ToLower(raw)
	tokens := tokenize(raw)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = struct{}{}
	}

	var matched []string
	for _, term := range e.cfg.TechTerms {
		t := strings.ToLower(term)
		if strings.ContainsRune(t, ' ') {
			if strings.Contains(lower, t) {
				matched = append(matched, t)
			}
			continue
		}
		if _, ok := tokenSet[t]; ok {
			matched = append(matched, t)
		}
	}
	return matched
}

func containsAnyTerm(n note.Note, terms []string) bool {
	haystack := strings.ToLower(n.Title() + " " + n.Text())
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}

// listAll returns every note newest first, used for empty queries.
func (e *Engine) listAll(ctx context.Context, limit int) ([]domsearch.Result, error) {
	notes, err := e.docs.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(notes) > limit {
		notes = notes[:limit]
	}

	metrics.SearchRequestsTotal.WithLabelValues("list_all").Inc()

	results := make([]domsearch.Result, 0, len(notes))
	for _, n := range notes {
		results = append(results, domsearch.NewResult(n, 0, domsearch.MatchDetails{}))
	}
	return results, nil
}

// keywordScan is the degraded path: a linear substring scan over title and text.
func (e *Engine) keywordScan(ctx context.Context, raw string, limit int) ([]domsearch.Result, error) {
	notes, err := e.docs.All(ctx)
	if err != nil {
		return nil, err
	}

	terms := keywordTerms(raw)
	lowerQuery := strings.ToLower(raw)

	var results []domsearch.Result
	for _, n := range notes {
		haystack := strings.ToLower(n.Title() + " " + n.Text())

		score, matched := e.keywordScore(n, terms)
		if score == 0 && !strings.Contains(haystack, lowerQuery) {
			continue
		}
		if score == 0 {
			// Whole-query substring hit with no scoring terms still counts.
			score = e.cfg.KeywordTermWeight
			matched = []string{lowerQuery}
		}
		results = append(results, domsearch.NewResult(n, score, domsearch.MatchDetails{
			KeywordScore:    score,
			MatchedKeywords: matched,
		}))
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}

	metrics.SearchRequestsTotal.WithLabelValues("keyword_scan").Inc()
	return results, nil
}

// sortResults orders by score descending, ties broken by recency.
func sortResults(results []domsearch.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score() != results[j].Score() {
			return results[i].Score() > results[j].Score()
		}
		return results[i].Note().Timestamp() > results[j].Note().Timestamp()
	})
}
