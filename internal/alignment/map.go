// Package alignment answers which code chunks were linked to a paper paragraph by
// the offline alignment step.
package alignment

import (
	"sort"

	"paperqa/internal/corpus"
)

// Candidate is a code chunk linked to a paragraph.
type Candidate struct {
	CodeChunkID string
	Confidence  float64
}

// Map is a read-only paragraph to code chunk lookup.
type Map struct {
	byParagraph map[string][]Candidate
	entries     int
}

// New builds a Map from entries. Duplicate (paragraph, chunk) pairs keep the
// highest confidence. Candidates are stored sorted by descending confidence,
// ties by ascending chunk id.
func New(entries []corpus.AlignmentEntry) *Map {
	best := make(map[string]map[string]float64)
	for _, e := range entries {
		if e.ParagraphID == "" || e.CodeChunkID == "" {
			continue
		}
		chunks, ok := best[e.ParagraphID]
		if !ok {
			chunks = make(map[string]float64)
			best[e.ParagraphID] = chunks
		}
		if prev, seen := chunks[e.CodeChunkID]; !seen || e.Confidence > prev {
			chunks[e.CodeChunkID] = e.Confidence
		}
	}

	m := &Map{byParagraph: make(map[string][]Candidate, len(best))}
	for paragraphID, chunks := range best {
		list := make([]Candidate, 0, len(chunks))
		for id, conf := range chunks {
			list = append(list, Candidate{CodeChunkID: id, Confidence: conf})
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Confidence != list[j].Confidence {
				return list[i].Confidence > list[j].Confidence
			}
			return list[i].CodeChunkID < list[j].CodeChunkID
		})
		m.byParagraph[paragraphID] = list
		m.entries += len(list)
	}
	return m
}

// CandidatesFor returns the chunks linked to paragraphID with confidence >= minConfidence,
// highest confidence first. Unknown paragraphs yield an empty result.
func (m *Map) CandidatesFor(paragraphID string, minConfidence float64) []Candidate {
	if m == nil {
		return nil
	}
	list := m.byParagraph[paragraphID]
	// list is sorted descending, so the qualifying candidates form a prefix.
	n := sort.Search(len(list), func(i int) bool {
		return list[i].Confidence < minConfidence
	})
	if n == 0 {
		return nil
	}
	out := make([]Candidate, n)
	copy(out, list[:n])
	return out
}

// Len returns the number of distinct (paragraph, chunk) links.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return m.entries
}

// Paragraphs returns the number of paragraphs with at least one link.
func (m *Map) Paragraphs() int {
	if m == nil {
		return 0
	}
	return len(m.byParagraph)
}
