package search

import (
	"strings"
	"unicode"
)

// minTermLength filters out stopword-sized tokens from keyword scoring.
const minTermLength = 3

// tokenize lowercases the query and splits it on non-alphanumeric runes.
func tokenize(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// keywordTerms returns the tokens long enough to carry signal.
func keywordTerms(query string) []string {
	var terms []string
	for _, tok := range tokenize(query) {
		if len(tok) >= minTermLength {
			terms = append(terms, tok)
		}
	}
	return terms
}

// countOccurrences counts non-overlapping case-insensitive occurrences of term in text.
func countOccurrences(text, term string) int {
	if term == "" {
		return 0
	}
	return strings.Count(strings.ToLower(text), term)
}
