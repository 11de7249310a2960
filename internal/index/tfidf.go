package index

import (
	"math"

	"paperqa/internal/corpus"
)

type weighted struct {
	doc    int
	weight float64
}

// Vector is a TF-IDF index scored by cosine similarity.
// Document vectors are L2-normalized at build time; the index is immutable afterwards.
type Vector struct {
	corpus   corpus.Kind
	ids      []string
	idf      map[string]float64
	postings map[string][]weighted
}

// BuildVector indexes units with weight(term, doc) = tf * ln(N / df).
// Terms present in every document weigh zero and are not stored.
func BuildVector(kind corpus.Kind, units []corpus.TextUnit) *Vector {
	ix := &Vector{
		corpus:   kind,
		ids:      make([]string, len(units)),
		idf:      make(map[string]float64),
		postings: make(map[string][]weighted),
	}

	docCounts := make([]map[string]int, len(units))
	df := make(map[string]int)
	for i, unit := range units {
		ix.ids[i] = unit.ID
		counts := termCounts(Tokenize(unit.Text))
		docCounts[i] = counts
		for term := range counts {
			df[term]++
		}
	}

	n := float64(len(units))
	for term, d := range df {
		ix.idf[term] = math.Log(n / float64(d))
	}

	for i, counts := range docCounts {
		terms := sortedTerms(counts)
		var norm float64
		for _, term := range terms {
			w := float64(counts[term]) * ix.idf[term]
			norm += w * w
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for _, term := range terms {
			w := float64(counts[term]) * ix.idf[term]
			if w == 0 {
				continue
			}
			ix.postings[term] = append(ix.postings[term], weighted{doc: i, weight: w / norm})
		}
	}
	return ix
}

// Corpus returns the corpus this index was built for.
func (ix *Vector) Corpus() corpus.Kind {
	return ix.corpus
}

// Len returns the number of indexed documents.
func (ix *Vector) Len() int {
	return len(ix.ids)
}

// VocabularySize returns the number of distinct terms seen at build time.
func (ix *Vector) VocabularySize() int {
	return len(ix.idf)
}

// Query builds a normalized query vector from the corpus-trained idf (unseen terms
// weigh zero) and returns the top k documents by cosine similarity. Documents with
// zero similarity are not returned.
func (ix *Vector) Query(text string, k int) []Hit {
	counts := termCounts(Tokenize(text))
	if len(counts) == 0 || len(ix.ids) == 0 {
		return nil
	}

	terms := sortedTerms(counts)
	var norm float64
	for _, term := range terms {
		w := float64(counts[term]) * ix.idf[term]
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)

	scores := make(map[int]float64)
	for _, term := range terms {
		qw := float64(counts[term]) * ix.idf[term] / norm
		if qw == 0 {
			continue
		}
		for _, p := range ix.postings[term] {
			scores[p.doc] += qw * p.weight
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
