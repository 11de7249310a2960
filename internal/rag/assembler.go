package rag

import (
	"context"
	"math"
	"sort"

	"paperqa/internal/contextutil"
	"paperqa/internal/corpus"
	"paperqa/internal/index"
	"paperqa/internal/project"
	"paperqa/internal/route"
)

// AssemblerConfig tunes retrieval and filtering.
type AssemblerConfig struct {
	// TopK is the number of hits taken from each index per corpus.
	TopK int
	// LexicalWeight is the BM25 share of the fused score; the vector share is 1-LexicalWeight.
	LexicalWeight float64
	// MinRelevance drops fused items scoring below it.
	MinRelevance float64
	// HybridCap is the per-corpus cap when both corpora are targeted.
	HybridCap int
	// SingleCap is the cap for single-corpus routes.
	SingleCap int
	// AlignmentMinConfidence is the floor for alignment candidates.
	AlignmentMinConfidence float64
	// AlignmentRatio bounds alignment additions to ceil(ratio * code cap).
	AlignmentRatio float64
}

// DefaultAssemblerConfig returns the default retrieval settings.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		TopK:                   10,
		LexicalWeight:          0.5,
		MinRelevance:           0.15,
		HybridCap:              5,
		SingleCap:              8,
		AlignmentMinConfidence: 0.5,
		AlignmentRatio:         0.2,
	}
}

// Assembler turns a question and a route into a frozen evidence set.
type Assembler struct {
	cfg AssemblerConfig
}

// NewAssembler creates an Assembler. Zero fields in cfg take their defaults.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	def := DefaultAssemblerConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.LexicalWeight < 0 || cfg.LexicalWeight > 1 {
		cfg.LexicalWeight = def.LexicalWeight
	}
	if cfg.HybridCap <= 0 {
		cfg.HybridCap = def.HybridCap
	}
	if cfg.SingleCap <= 0 {
		cfg.SingleCap = def.SingleCap
	}
	if cfg.AlignmentRatio < 0 {
		cfg.AlignmentRatio = 0
	}
	return &Assembler{cfg: cfg}
}

// Config returns the effective configuration.
func (a *Assembler) Config() AssemblerConfig {
	return a.cfg
}

// corpusCap returns the per-corpus cap for a label.
func (a *Assembler) corpusCap(label route.Label) int {
	if len(label.Corpora()) == 1 {
		return a.cfg.SingleCap
	}
	return a.cfg.HybridCap
}

// AlignmentCap returns the maximum number of alignment-sourced items for a label.
func (a *Assembler) AlignmentCap(label route.Label) int {
	return int(math.Ceil(a.cfg.AlignmentRatio * float64(a.corpusCap(label))))
}

type fused struct {
	id          string
	lexical     float64
	vector      float64
	lexicalRank int
	vectorRank  int
	score       float64
}

// Assemble retrieves, fuses, filters and caps evidence from snap. It only reads
// snap and never fails: missing corpora and units degrade to less evidence.
func (a *Assembler) Assemble(ctx context.Context, snap *project.Snapshot, question string, decision route.Decision) Set {
	logger := contextutil.LoggerFromContext(ctx)
	capPerCorpus := a.corpusCap(decision.Label)

	var (
		retrieved []Evidence
		paperKept []Evidence
		present   = make(map[string]bool)
		codeOn    bool
	)
	for _, kind := range decision.Label.Corpora() {
		if kind == corpus.Code {
			codeOn = true
		}
		ci := snap.Corpus(kind)
		if ci == nil || ci.Len() == 0 {
			continue
		}

		candidates := a.fuse(ci, question)
		kept := 0
		for _, c := range candidates {
			if kept >= capPerCorpus {
				break
			}
			if c.score < a.cfg.MinRelevance {
				break
			}
			unit, ok := ci.Unit(c.id)
			if !ok {
				continue
			}
			item := Item{
				UnitID:       c.id,
				Corpus:       kind,
				Score:        c.score,
				LexicalScore: c.lexical,
				VectorScore:  c.vector,
			}
			// The item is attributed to the source that contributed more to its score.
			if a.cfg.LexicalWeight*c.lexical >= (1-a.cfg.LexicalWeight)*c.vector && c.lexicalRank > 0 {
				item.Source, item.RankWithinSource = SourceLexical, c.lexicalRank
			} else {
				item.Source, item.RankWithinSource = SourceVector, c.vectorRank
			}
			ev, err := newEvidence(unit, item)
			if err != nil {
				logger.WarnContext(ctx, "skipping evidence", "unit_id", c.id, "error", err)
				continue
			}
			retrieved = append(retrieved, ev)
			present[unit.Key()] = true
			if kind == corpus.Paper {
				paperKept = append(paperKept, ev)
			}
			kept++
		}
	}

	sort.SliceStable(retrieved, func(i, j int) bool {
		bi, bj := retrieved[i].Base(), retrieved[j].Base()
		if bi.Score != bj.Score {
			return bi.Score > bj.Score
		}
		if bi.Corpus != bj.Corpus {
			return bi.Corpus < bj.Corpus
		}
		return bi.UnitID < bj.UnitID
	})

	items := retrieved
	if codeOn && len(paperKept) > 0 {
		items = append(items, a.alignmentEvidence(snap, paperKept, present, a.AlignmentCap(decision.Label))...)
	}

	set := Set{
		Items: items,
		Mix:   ComputeMix(items),
		Route: decision,
	}
	set.Insufficient = set.Mix.Total == 0
	if kind, ok := decision.Label.Demands(); ok && set.Count(kind) == 0 {
		set.Insufficient = true
	}

	logger.InfoContext(ctx, "evidence assembled",
		"project_id", snap.ProjectID,
		"route", decision.Label,
		"paper_count", set.Mix.PaperCount,
		"code_count", set.Mix.CodeCount,
		"insufficient", set.Insufficient,
	)
	return set
}

// fuse queries both indices of ci and merges their normalized scores by unit id,
// sorted by descending fused score with ascending id tiebreak.
func (a *Assembler) fuse(ci *project.CorpusIndex, question string) []fused {
	byID := make(map[string]*fused)
	get := func(id string) *fused {
		f, ok := byID[id]
		if !ok {
			f = &fused{id: id}
			byID[id] = f
		}
		return f
	}

	lexHits := ci.Lexical.Query(question, a.cfg.TopK)
	for i, h := range lexHits {
		f := get(h.ID)
		f.lexical = normalized(lexHits, i)
		f.lexicalRank = i + 1
	}
	vecHits := ci.Vector.Query(question, a.cfg.TopK)
	for i, h := range vecHits {
		f := get(h.ID)
		f.vector = normalized(vecHits, i)
		f.vectorRank = i + 1
	}

	out := make([]fused, 0, len(byID))
	for _, f := range byID {
		f.score = a.cfg.LexicalWeight*f.lexical + (1-a.cfg.LexicalWeight)*f.vector
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})
	return out
}

// normalized min-max normalizes hits[i].Score over hits. Equal scores normalize to 1.
func normalized(hits []index.Hit, i int) float64 {
	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		lo = math.Min(lo, h.Score)
		hi = math.Max(hi, h.Score)
	}
	if hi-lo <= 1e-12 {
		return 1
	}
	return (hits[i].Score - lo) / (hi - lo)
}

// alignmentEvidence follows alignment links from the retained paragraphs, in their
// order, adding at most limit code chunks not already present.
func (a *Assembler) alignmentEvidence(snap *project.Snapshot, paragraphs []Evidence, present map[string]bool, limit int) []Evidence {
	if limit <= 0 || snap.Alignment == nil || snap.Code == nil {
		return nil
	}
	var out []Evidence
	rank := 0
	for _, p := range paragraphs {
		pid := p.Base().UnitID
		for _, c := range snap.Alignment.CandidatesFor(pid, a.cfg.AlignmentMinConfidence) {
			if len(out) >= limit {
				return out
			}
			unit, ok := snap.Code.Unit(c.CodeChunkID)
			if !ok || present[unit.Key()] {
				continue
			}
			rank++
			ev, err := newEvidence(unit, Item{
				UnitID:           unit.ID,
				Corpus:           corpus.Code,
				Score:            c.Confidence,
				Source:           SourceAlignment,
				RankWithinSource: rank,
			})
			if err != nil {
				continue
			}
			code, _ := ev.(CodeEvidence)
			out = append(out, AlignmentEvidence{CodeEvidence: code, ParagraphID: pid})
			present[unit.Key()] = true
		}
	}
	return out
}
