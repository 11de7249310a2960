package index

import (
	"math"

	"paperqa/internal/corpus"
)

const (
	// DefaultK1 controls term frequency saturation.
	DefaultK1 = 1.5
	// DefaultB controls document length normalization.
	DefaultB = 0.75
)

type posting struct {
	doc int
	tf  int
}

// Lexical is a BM25 index over one corpus.
// It is immutable after BuildLexical returns.
type Lexical struct {
	corpus   corpus.Kind
	ids      []string
	docLen   []int
	avgLen   float64
	df       map[string]int
	postings map[string][]posting
	k1       float64
	b        float64
}

// LexicalOption configures a Lexical index.
type LexicalOption func(*Lexical)

// WithBM25Params overrides k1 and b.
func WithBM25Params(k1, b float64) LexicalOption {
	return func(ix *Lexical) {
		ix.k1 = k1
		ix.b = b
	}
}

// BuildLexical indexes units. Units must belong to a single corpus.
func BuildLexical(kind corpus.Kind, units []corpus.TextUnit, opts ...LexicalOption) *Lexical {
	ix := &Lexical{
		corpus:   kind,
		ids:      make([]string, len(units)),
		docLen:   make([]int, len(units)),
		df:       make(map[string]int),
		postings: make(map[string][]posting),
		k1:       DefaultK1,
		b:        DefaultB,
	}
	for _, opt := range opts {
		opt(ix)
	}

	total := 0
	for i, unit := range units {
		tokens := Tokenize(unit.Text)
		ix.ids[i] = unit.ID
		ix.docLen[i] = len(tokens)
		total += len(tokens)

		counts := termCounts(tokens)
		for _, term := range sortedTerms(counts) {
			ix.df[term]++
			ix.postings[term] = append(ix.postings[term], posting{doc: i, tf: counts[term]})
		}
	}
	if len(units) > 0 {
		ix.avgLen = float64(total) / float64(len(units))
	}
	return ix
}

// Corpus returns the corpus this index was built for.
func (ix *Lexical) Corpus() corpus.Kind {
	return ix.corpus
}

// Len returns the number of indexed documents.
func (ix *Lexical) Len() int {
	return len(ix.ids)
}

// VocabularySize returns the number of distinct indexed terms.
func (ix *Lexical) VocabularySize() int {
	return len(ix.df)
}

// idf returns ln((N - df + 0.5)/(df + 0.5) + 1).
func (ix *Lexical) idf(term string) float64 {
	n := float64(len(ix.ids))
	df := float64(ix.df[term])
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// Query scores every document containing at least one query term and returns the
// top k by descending score, ties broken by ascending id. Repeated query terms
// count once. Terms absent from the index contribute nothing.
func (ix *Lexical) Query(text string, k int) []Hit {
	counts := termCounts(Tokenize(text))
	if len(counts) == 0 || len(ix.ids) == 0 || ix.avgLen == 0 {
		return nil
	}

	scores := make(map[int]float64)
	for _, term := range sortedTerms(counts) {
		plist, ok := ix.postings[term]
		if !ok {
			continue
		}
		idf := ix.idf(term)
		for _, p := range plist {
			tf := float64(p.tf)
			norm := 1 - ix.b + ix.b*float64(ix.docLen[p.doc])/ix.avgLen
			scores[p.doc] += idf * tf * (ix.k1 + 1) / (tf + ix.k1*norm)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, score := range scores {
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{ID: ix.ids[doc], Score: score})
	}
	return rank(hits, k)
}
