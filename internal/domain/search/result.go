package search

import "github.com/noterag/noterag/internal/domain/note"

// MatchDetails exposes how a result's score was produced, for observability and tests.
type MatchDetails struct {
	VectorScore     float64
	KeywordScore    float64
	MatchedKeywords []string
	Boosted         bool
}

// Result is a single ranked search hit. Score is in [0,1] after combination and boost.
type Result struct {
	note    note.Note
	score   float64
	details MatchDetails
}

// NewResult creates a search result.
func NewResult(n note.Note, score float64, details MatchDetails) Result {
	return Result{note: n, score: score, details: details}
}

// Note returns the underlying note.
func (r *Result) Note() note.Note { return r.note }

// ID returns the note identifier.
func (r *Result) ID() string { return r.note.ID() }

// Score returns the final combined score.
func (r *Result) Score() float64 { return r.score }

// Details returns the per-signal score breakdown.
func (r *Result) Details() MatchDetails { return r.details }

// WithScore returns a copy with a replaced score and boost flag.
func (r *Result) WithScore(score float64, boosted bool) Result {
	d := r.details
	d.Boosted = boosted
	return Result{note: r.note, score: score, details: d}
}
