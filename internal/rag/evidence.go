package rag

import (
	"fmt"
	"math"

	"paperqa/internal/corpus"
	"paperqa/internal/route"
)

// Source identifies which retriever produced an evidence item.
type Source string

const (
	SourceLexical   Source = "lexical"
	SourceVector    Source = "vector"
	SourceAlignment Source = "alignment"
)

// Item is the scoring record shared by every kind of evidence.
type Item struct {
	UnitID           string      `json:"unit_id"`
	Corpus           corpus.Kind `json:"corpus"`
	Score            float64     `json:"score"`
	Source           Source      `json:"source"`
	RankWithinSource int         `json:"rank_within_source"`
	// LexicalScore and VectorScore are the min-max normalized per-source scores.
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
}

// Base returns the scoring record.
func (i Item) Base() Item { return i }

// Evidence is one of PaperEvidence, CodeEvidence or AlignmentEvidence.
type Evidence interface {
	Base() Item
	// Kind is "paper", "code" or "alignment".
	Kind() string
	Excerpt() string
	isEvidence()
}

// PaperEvidence is a retrieved paper paragraph.
type PaperEvidence struct {
	Item
	ParagraphIndex int
	Page           int
	Text           string
}

func (PaperEvidence) Kind() string { return "paper" }
func (e PaperEvidence) Excerpt() string { return e.Text }
func (PaperEvidence) isEvidence() {}

// CodeEvidence is a retrieved code chunk.
type CodeEvidence struct {
	Item
	Path       string
	SymbolName string
	StartLine  int
	EndLine    int
	Text       string
}

func (CodeEvidence) Kind() string { return "code" }
func (e CodeEvidence) Excerpt() string { return e.Text }
func (CodeEvidence) isEvidence() {}

// Ref returns the code location of the chunk.
func (e CodeEvidence) Ref() CodeRef {
	return CodeRef{
		Path:       e.Path,
		StartLine:  e.StartLine,
		EndLine:    e.EndLine,
		SymbolName: e.SymbolName,
		Line:       e.StartLine,
	}
}

// AlignmentEvidence is a code chunk added because a retained paragraph links to it.
type AlignmentEvidence struct {
	CodeEvidence
	ParagraphID string
}

func (AlignmentEvidence) Kind() string { return "alignment" }
func (AlignmentEvidence) isEvidence() {}

// codeOf returns the code payload of code and alignment evidence.
func codeOf(ev Evidence) (CodeEvidence, bool) {
	switch e := ev.(type) {
	case CodeEvidence:
		return e, true
	case AlignmentEvidence:
		return e.CodeEvidence, true
	default:
		return CodeEvidence{}, false
	}
}

func newEvidence(unit corpus.TextUnit, item Item) (Evidence, error) {
	switch unit.Corpus {
	case corpus.Paper:
		ev := PaperEvidence{Item: item, Text: unit.Text}
		if unit.Paper != nil {
			ev.ParagraphIndex = unit.Paper.ParagraphIndex
			ev.Page = unit.Paper.Page
		}
		return ev, nil
	case corpus.Code:
		ev := CodeEvidence{Item: item, Text: unit.Text}
		if unit.Code != nil {
			ev.Path = unit.Code.Path
			ev.SymbolName = unit.Code.SymbolName
			ev.StartLine = unit.Code.StartLine
			ev.EndLine = unit.Code.EndLine
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown corpus %q for unit %s", unit.Corpus, unit.ID)
	}
}

// Mix is the paper/code composition of an evidence set.
type Mix struct {
	PaperCount int `json:"paper_count"`
	CodeCount  int `json:"code_count"`
	Total      int `json:"total"`
	PaperPct   int `json:"paper_pct"`
	CodePct    int `json:"code_pct"`
}

// ComputeMix counts items per corpus. Percentages are whole numbers that sum to
// 100 when the set is non-empty and are both 0 otherwise.
func ComputeMix(items []Evidence) Mix {
	var m Mix
	for _, ev := range items {
		switch ev.Base().Corpus {
		case corpus.Paper:
			m.PaperCount++
		case corpus.Code:
			m.CodeCount++
		}
	}
	m.Total = m.PaperCount + m.CodeCount
	if m.Total == 0 {
		return m
	}
	m.PaperPct = int(math.Round(100 * float64(m.PaperCount) / float64(m.Total)))
	m.CodePct = 100 - m.PaperPct
	return m
}

// Set is the frozen evidence for one request.
type Set struct {
	Items        []Evidence
	Mix          Mix
	Insufficient bool
	Route        route.Decision
}

// Count returns the number of items from kind.
func (s Set) Count(kind corpus.Kind) int {
	switch kind {
	case corpus.Paper:
		return s.Mix.PaperCount
	case corpus.Code:
		return s.Mix.CodeCount
	default:
		return 0
	}
}
