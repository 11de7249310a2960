// Package index provides immutable per-corpus retrieval indices: a BM25 lexical
// index and a TF-IDF cosine vector index. Both are built once from a fixed list of
// text units and are safe for concurrent queries without synchronization.
package index

import (
	"sort"
	"strings"
	"unicode"
)

// Tokenize case-folds text and splits it on every non-alphanumeric rune.
// Empty tokens are dropped. Indexing and querying share this function.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}

	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
		} else {
			builder.WriteRune(' ')
		}
	}
	tokens := strings.Fields(builder.String())
	if len(tokens) == 0 {
		return nil
	}
	return tokens
}

// termCounts returns term frequencies for tokens.
func termCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	return counts
}

// sortedTerms returns the keys of counts in lexical order so that floating
// point accumulation happens in the same order on every query.
func sortedTerms(counts map[string]int) []string {
	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

// Hit is one ranked result of an index query.
type Hit struct {
	ID    string
	Score float64
}

// rank sorts hits by descending score, ties by ascending id, and keeps the first k.
// k <= 0 keeps every hit.
func rank(hits []Hit, k int) []Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
