package rag

import (
	"context"
	"math"
	"testing"

	"paperqa/internal/corpus"
	"paperqa/internal/index"
	"paperqa/internal/project"
	"paperqa/internal/route"
)

func paragraph(i int, text string) corpus.TextUnit {
	return corpus.TextUnit{
		ID:     corpus.ParagraphID(i),
		Corpus: corpus.Paper,
		Text:   text,
		Paper:  &corpus.PaperMeta{ParagraphIndex: i, Page: i/2 + 1},
	}
}

func chunk(i int, path, symbol string, start, end int, text string) corpus.TextUnit {
	return corpus.TextUnit{
		ID:     corpus.ChunkID(i),
		Corpus: corpus.Code,
		Text:   text,
		Code:   &corpus.CodeMeta{Path: path, SymbolName: symbol, StartLine: start, EndLine: end},
	}
}

// fixtureSnapshot is a small paper with its implementation.
func fixtureSnapshot() *project.Snapshot {
	paragraphs := []corpus.TextUnit{
		paragraph(0, "The positional encoding uses rotary embeddings"),
		paragraph(1, "We train the attention layers with dropout and a warmup schedule"),
		paragraph(2, "Results on long documents improve with rotary positional encoding"),
		paragraph(3, "The authors thank the reviewers"),
	}
	chunks := []corpus.TextUnit{
		chunk(0, "model/attention.py", "attention", 1, 20, "def attention(query, key, value): scores = query @ key.T; return softmax(scores) @ value"),
		chunk(1, "model/rope.py", "rotary_embedding", 1, 15, "def rotary_embedding(x, theta): rotate half of x by theta"),
		chunk(2, "train.py", "train", 1, 40, "def train(model, data): warmup schedule dropout optimizer step"),
		chunk(3, "utils/io.py", "load_checkpoint", 1, 10, "def load_checkpoint(path): return torch.load(path)"),
	}
	entries := []corpus.AlignmentEntry{
		{ParagraphID: corpus.ParagraphID(0), CodeChunkID: corpus.ChunkID(1), Confidence: 0.9},
		{ParagraphID: corpus.ParagraphID(1), CodeChunkID: corpus.ChunkID(2), Confidence: 0.8},
		{ParagraphID: corpus.ParagraphID(1), CodeChunkID: corpus.ChunkID(0), Confidence: 0.6},
		{ParagraphID: corpus.ParagraphID(2), CodeChunkID: corpus.ChunkID(1), Confidence: 0.7},
		{ParagraphID: corpus.ParagraphID(2), CodeChunkID: corpus.ChunkID(3), Confidence: 0.55},
	}
	return project.NewSnapshot(corpus.Manifest{ID: "rope", Name: "RoPE"}, paragraphs, chunks, entries)
}

func decision(label route.Label) route.Decision {
	return route.Decision{Label: label, Provenance: route.Deterministic}
}

func countBy(set Set, pred func(Evidence) bool) int {
	n := 0
	for _, ev := range set.Items {
		if pred(ev) {
			n++
		}
	}
	return n
}

func TestComputeMix(t *testing.T) {
	p := PaperEvidence{Item: Item{Corpus: corpus.Paper}}
	c := CodeEvidence{Item: Item{Corpus: corpus.Code}}
	a := AlignmentEvidence{CodeEvidence: c}

	tests := []struct {
		name  string
		items []Evidence
		want  Mix
	}{
		{"empty", nil, Mix{}},
		{"paper only", []Evidence{p, p}, Mix{PaperCount: 2, Total: 2, PaperPct: 100}},
		{"alignment counts as code", []Evidence{p, c, a}, Mix{PaperCount: 1, CodeCount: 2, Total: 3, PaperPct: 33, CodePct: 67}},
		{"rounding keeps sum", []Evidence{p, p, c}, Mix{PaperCount: 2, CodeCount: 1, Total: 3, PaperPct: 67, CodePct: 33}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeMix(tt.items)
			if got != tt.want {
				t.Errorf("ComputeMix() = %+v, want %+v", got, tt.want)
			}
			if got.PaperCount+got.CodeCount != got.Total {
				t.Error("counts do not add up to total")
			}
			if got.Total > 0 && got.PaperPct+got.CodePct != 100 {
				t.Error("percentages do not add up to 100")
			}
		})
	}
}

func TestAssembler_RouteExclusivity(t *testing.T) {
	snap := fixtureSnapshot()
	a := NewAssembler(DefaultAssemblerConfig())
	question := "rotary positional encoding attention dropout warmup"

	paperSet := a.Assemble(context.Background(), snap, question, decision(route.PaperOnly))
	if paperSet.Mix.PaperCount == 0 {
		t.Fatal("paper_only route found no paper evidence")
	}
	if n := countBy(paperSet, func(ev Evidence) bool { return ev.Base().Corpus == corpus.Code }); n != 0 {
		t.Errorf("paper_only set contains %d code items", n)
	}

	codeSet := a.Assemble(context.Background(), snap, question, decision(route.CodeOnly))
	if codeSet.Mix.CodeCount == 0 {
		t.Fatal("code_only route found no code evidence")
	}
	if n := countBy(codeSet, func(ev Evidence) bool { return ev.Base().Corpus == corpus.Paper }); n != 0 {
		t.Errorf("code_only set contains %d paper items", n)
	}
	if n := countBy(codeSet, func(ev Evidence) bool { return ev.Base().Source == SourceAlignment }); n != 0 {
		t.Errorf("code_only set contains %d alignment items without paper evidence", n)
	}
}

func TestAssembler_ThresholdMonotonicity(t *testing.T) {
	snap := fixtureSnapshot()
	question := "rotary positional encoding attention warmup"

	for _, label := range []route.Label{route.PaperOnly, route.CodeOnly, route.Hybrid, route.Fallback} {
		t.Run(string(label), func(t *testing.T) {
			prev := math.MaxInt
			for step := 0; step <= 20; step++ {
				cfg := DefaultAssemblerConfig()
				cfg.MinRelevance = float64(step) * 0.05
				set := NewAssembler(cfg).Assemble(context.Background(), snap, question, decision(label))
				if set.Mix.Total > prev {
					t.Errorf("threshold %.2f: %d items, more than %d at a lower threshold", cfg.MinRelevance, set.Mix.Total, prev)
				}
				prev = set.Mix.Total
				for _, ev := range set.Items {
					if b := ev.Base(); b.Source != SourceAlignment && b.Score < cfg.MinRelevance {
						t.Errorf("item %s scored %.3f below threshold %.2f", b.UnitID, b.Score, cfg.MinRelevance)
					}
				}
			}
		})
	}
}

func TestAssembler_AlignmentAugmentation(t *testing.T) {
	snap := fixtureSnapshot()
	a := NewAssembler(DefaultAssemblerConfig())

	set := a.Assemble(context.Background(), snap, "uses rotary embeddings", decision(route.Hybrid))

	var aligned []AlignmentEvidence
	lastRetrieved, firstAligned := -1, len(set.Items)
	for i, ev := range set.Items {
		if al, ok := ev.(AlignmentEvidence); ok {
			aligned = append(aligned, al)
			if i < firstAligned {
				firstAligned = i
			}
		} else {
			lastRetrieved = i
		}
	}
	if lastRetrieved > firstAligned {
		t.Error("alignment evidence placed before retrieved evidence")
	}
	if limit := a.AlignmentCap(route.Hybrid); len(aligned) > limit {
		t.Errorf("got %d alignment items, cap is %d", len(aligned), limit)
	}

	seen := make(map[string]bool)
	for _, ev := range set.Items {
		key := string(ev.Base().Corpus) + ev.Base().UnitID
		if seen[key] {
			t.Errorf("duplicate evidence %s", key)
		}
		seen[key] = true
	}
	for _, al := range aligned {
		if al.Score < a.Config().AlignmentMinConfidence {
			t.Errorf("alignment item %s below confidence floor: %.2f", al.UnitID, al.Score)
		}
		if al.ParagraphID == "" || al.Path == "" {
			t.Errorf("alignment item missing provenance: %+v", al)
		}
	}
}

func TestAssembler_AlignmentCap(t *testing.T) {
	var paragraphs, chunks []corpus.TextUnit
	var entries []corpus.AlignmentEntry
	for i := 0; i < 6; i++ {
		paragraphs = append(paragraphs, paragraph(i, "rotary encoding variant"))
	}
	for i := 0; i < 20; i++ {
		chunks = append(chunks, chunk(i, "pkg/file.py", "fn", i*10+1, i*10+9, "unrelated helper body"))
		entries = append(entries, corpus.AlignmentEntry{
			ParagraphID: corpus.ParagraphID(i % 6),
			CodeChunkID: corpus.ChunkID(i),
			Confidence:  0.9,
		})
	}
	snap := project.NewSnapshot(corpus.Manifest{ID: "cap"}, paragraphs, chunks, entries)

	for _, ratio := range []float64{0, 0.2, 0.5, 1} {
		cfg := DefaultAssemblerConfig()
		cfg.AlignmentRatio = ratio
		a := NewAssembler(cfg)
		set := a.Assemble(context.Background(), snap, "rotary encoding", decision(route.Hybrid))

		got := countBy(set, func(ev Evidence) bool { return ev.Base().Source == SourceAlignment })
		want := int(math.Ceil(ratio * float64(cfg.HybridCap)))
		if got != want {
			t.Errorf("ratio %.1f: %d alignment items, want %d", ratio, got, want)
		}
	}
}

func TestAssembler_Caps(t *testing.T) {
	var paragraphs []corpus.TextUnit
	for i := 0; i < 30; i++ {
		paragraphs = append(paragraphs, paragraph(i, "attention attention mechanism variant"))
	}
	snap := project.NewSnapshot(corpus.Manifest{ID: "caps"}, paragraphs, nil, nil)
	a := NewAssembler(DefaultAssemblerConfig())

	if got := a.Assemble(context.Background(), snap, "attention", decision(route.PaperOnly)).Mix.Total; got != 8 {
		t.Errorf("single corpus cap: got %d items, want 8", got)
	}
	if got := a.Assemble(context.Background(), snap, "attention", decision(route.Hybrid)).Mix.PaperCount; got != 5 {
		t.Errorf("hybrid cap: got %d paper items, want 5", got)
	}
}

func TestAssembler_Insufficient(t *testing.T) {
	snap := fixtureSnapshot()
	a := NewAssembler(DefaultAssemblerConfig())

	tests := []struct {
		name     string
		question string
		label    route.Label
		want     bool
	}{
		{"out of vocabulary", "zyxwvut", route.Fallback, true},
		{"demanded corpus empty", "reviewers", route.CodeOnly, true},
		{"hybrid with one corpus", "reviewers", route.Hybrid, false},
		{"matches", "rotary", route.PaperOnly, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := a.Assemble(context.Background(), snap, tt.question, decision(tt.label))
			if set.Insufficient != tt.want {
				t.Errorf("Insufficient = %v, want %v (mix %+v)", set.Insufficient, tt.want, set.Mix)
			}
			if set.Mix.Total == 0 && !set.Insufficient {
				t.Error("empty set must be insufficient")
			}
		})
	}
}

func TestAssembler_Deterministic(t *testing.T) {
	snap := fixtureSnapshot()
	a := NewAssembler(DefaultAssemblerConfig())
	first := a.Assemble(context.Background(), snap, "rotary attention warmup", decision(route.Hybrid))
	for i := 0; i < 5; i++ {
		again := a.Assemble(context.Background(), snap, "rotary attention warmup", decision(route.Hybrid))
		if len(again.Items) != len(first.Items) {
			t.Fatalf("run %d: %d items, want %d", i, len(again.Items), len(first.Items))
		}
		for j := range again.Items {
			if again.Items[j].Base() != first.Items[j].Base() {
				t.Errorf("run %d item %d = %+v, want %+v", i, j, again.Items[j].Base(), first.Items[j].Base())
			}
		}
	}
}

func hitsOf(scores ...float64) []index.Hit {
	hits := make([]index.Hit, len(scores))
	for i, s := range scores {
		hits[i] = index.Hit{ID: corpus.ParagraphID(i), Score: s}
	}
	return hits
}

func TestNormalized(t *testing.T) {
	if got := normalized(hitsOf(3.0), 0); got != 1 {
		t.Errorf("single hit normalized to %v, want 1", got)
	}
	if got := normalized(hitsOf(2.0, 2.0), 1); got != 1 {
		t.Errorf("equal hits normalized to %v, want 1", got)
	}
	hits := hitsOf(4.0, 3.0, 2.0)
	want := []float64{1, 0.5, 0}
	for i := range hits {
		if got := normalized(hits, i); math.Abs(got-want[i]) > 1e-9 {
			t.Errorf("normalized(%d) = %v, want %v", i, got, want[i])
		}
	}
}
