// Package project owns the per-project retrieval context: the indices and
// alignment map built from ingestion output, published as immutable snapshots.
package project

import (
	"time"

	"paperqa/internal/alignment"
	"paperqa/internal/corpus"
	"paperqa/internal/index"
)

// CorpusIndex bundles both indices and the units of one corpus.
type CorpusIndex struct {
	Kind    corpus.Kind
	Lexical *index.Lexical
	Vector  *index.Vector
	units   map[string]corpus.TextUnit
}

func newCorpusIndex(kind corpus.Kind, units []corpus.TextUnit, opts ...index.LexicalOption) *CorpusIndex {
	byID := make(map[string]corpus.TextUnit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}
	return &CorpusIndex{
		Kind:    kind,
		Lexical: index.BuildLexical(kind, units, opts...),
		Vector:  index.BuildVector(kind, units),
		units:   byID,
	}
}

// Unit returns the text unit with id.
func (c *CorpusIndex) Unit(id string) (corpus.TextUnit, bool) {
	if c == nil {
		return corpus.TextUnit{}, false
	}
	u, ok := c.units[id]
	return u, ok
}

// Len returns the number of units in the corpus.
func (c *CorpusIndex) Len() int {
	if c == nil {
		return 0
	}
	return len(c.units)
}

// Snapshot is the read-only retrieval context of one project at one point in time.
// Nothing reachable from a Snapshot is mutated after it is published.
type Snapshot struct {
	ProjectID string
	Manifest  corpus.Manifest
	Paper     *CorpusIndex
	Code      *CorpusIndex
	Alignment *alignment.Map
	BuiltAt   time.Time
}

// NewSnapshot builds a snapshot from already loaded corpora.
func NewSnapshot(manifest corpus.Manifest, paragraphs, chunks []corpus.TextUnit, entries []corpus.AlignmentEntry, opts ...index.LexicalOption) *Snapshot {
	return &Snapshot{
		ProjectID: manifest.ID,
		Manifest:  manifest,
		Paper:     newCorpusIndex(corpus.Paper, paragraphs, opts...),
		Code:      newCorpusIndex(corpus.Code, chunks, opts...),
		Alignment: alignment.New(entries),
		BuiltAt:   time.Now().UTC(),
	}
}

// Corpus returns the index for kind.
func (s *Snapshot) Corpus(kind corpus.Kind) *CorpusIndex {
	switch kind {
	case corpus.Paper:
		return s.Paper
	case corpus.Code:
		return s.Code
	default:
		return nil
	}
}

// Unit looks up a unit by its (corpus, id) identity.
func (s *Snapshot) Unit(kind corpus.Kind, id string) (corpus.TextUnit, bool) {
	return s.Corpus(kind).Unit(id)
}

// Stats summarizes a snapshot for logs and the projects API.
type Stats struct {
	ProjectID        string    `json:"project_id"`
	Paragraphs       int       `json:"paragraphs"`
	CodeChunks       int       `json:"code_chunks"`
	PaperVocabulary  int       `json:"paper_vocabulary"`
	CodeVocabulary   int       `json:"code_vocabulary"`
	AlignmentLinks   int       `json:"alignment_links"`
	AlignedParagraph int       `json:"aligned_paragraphs"`
	BuiltAt          time.Time `json:"built_at"`
}

// Stats returns counts describing the snapshot.
func (s *Snapshot) Stats() Stats {
	st := Stats{
		ProjectID:        s.ProjectID,
		Paragraphs:       s.Paper.Len(),
		CodeChunks:       s.Code.Len(),
		AlignmentLinks:   s.Alignment.Len(),
		AlignedParagraph: s.Alignment.Paragraphs(),
		BuiltAt:          s.BuiltAt,
	}
	if s.Paper != nil {
		st.PaperVocabulary = s.Paper.Lexical.VocabularySize()
	}
	if s.Code != nil {
		st.CodeVocabulary = s.Code.Lexical.VocabularySize()
	}
	return st
}
