package index

import (
	"math"
	"reflect"
	"testing"

	"paperqa/internal/corpus"
)

func paperUnits(texts ...string) []corpus.TextUnit {
	units := make([]corpus.TextUnit, len(texts))
	for i, text := range texts {
		units[i] = corpus.TextUnit{
			ID:     corpus.ParagraphID(i),
			Corpus: corpus.Paper,
			Text:   text,
			Paper:  &corpus.PaperMeta{ParagraphIndex: i},
		}
	}
	return units
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "empty", text: "", want: nil},
		{name: "punctuation only", text: "--- ... !!", want: nil},
		{name: "case folded", text: "Rotary Embeddings", want: []string{"rotary", "embeddings"}},
		{name: "underscore splits", text: "rotary_embedding()", want: []string{"rotary", "embedding"}},
		{name: "digits kept", text: "layer2.norm", want: []string{"layer2", "norm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tokenize(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestLexical_QueryMatchesFormula(t *testing.T) {
	units := paperUnits(
		"rotary position encoding",
		"attention attention softmax",
		"feed forward layer",
	)
	ix := BuildLexical(corpus.Paper, units)

	hits := ix.Query("attention", 10)
	if len(hits) != 1 {
		t.Fatalf("Query() len = %d, want 1", len(hits))
	}

	// N=3, df=1, tf=2, len=3, avgLen=3
	idf := math.Log((3-1+0.5)/(1+0.5) + 1)
	want := idf * 2 * (DefaultK1 + 1) / (2 + DefaultK1*(1-DefaultB+DefaultB*1))
	if math.Abs(hits[0].Score-want) > 1e-12 {
		t.Errorf("score = %v, want %v", hits[0].Score, want)
	}
	if hits[0].ID != "p00001" {
		t.Errorf("id = %s, want p00001", hits[0].ID)
	}
}

func TestLexical_UnknownTermsScoreZero(t *testing.T) {
	ix := BuildLexical(corpus.Paper, paperUnits("rotary position encoding"))
	if hits := ix.Query("zzzqqq", 5); len(hits) != 0 {
		t.Errorf("Query() = %v, want no hits", hits)
	}
	if hits := ix.Query("", 5); len(hits) != 0 {
		t.Errorf("Query(empty) = %v, want no hits", hits)
	}
}

func TestLexical_TieBreakByID(t *testing.T) {
	ix := BuildLexical(corpus.Paper, paperUnits("alpha beta", "gamma delta", "alpha beta"))
	hits := ix.Query("alpha", 10)
	if len(hits) != 2 {
		t.Fatalf("Query() len = %d, want 2", len(hits))
	}
	if hits[0].ID != "p00000" || hits[1].ID != "p00002" {
		t.Errorf("tie order = %v, want p00000 then p00002", hits)
	}
}

func TestLexical_TopK(t *testing.T) {
	ix := BuildLexical(corpus.Paper, paperUnits("a x", "a y", "a z", "b"))
	if hits := ix.Query("a", 2); len(hits) != 2 {
		t.Errorf("Query() len = %d, want 2", len(hits))
	}
	if hits := ix.Query("a", 0); len(hits) != 3 {
		t.Errorf("Query(k=0) len = %d, want 3", len(hits))
	}
}

func TestLexical_SingleDocumentStillScores(t *testing.T) {
	ix := BuildLexical(corpus.Paper, paperUnits("The positional encoding uses rotary embeddings"))
	hits := ix.Query("What positional encoding is used?", 10)
	if len(hits) != 1 || hits[0].Score <= 0 {
		t.Errorf("Query() = %v, want one positive hit", hits)
	}
}

func TestLexical_Deterministic(t *testing.T) {
	ix := BuildLexical(corpus.Paper, paperUnits(
		"scaled dot product attention",
		"multi head attention with rotary position",
		"position wise feed forward",
		"dropout and layer norm after attention",
	))
	first := ix.Query("rotary attention position head", 10)
	for i := 0; i < 20; i++ {
		if got := ix.Query("rotary attention position head", 10); !reflect.DeepEqual(got, first) {
			t.Fatalf("Query() run %d = %v, want %v", i, got, first)
		}
	}
}

func TestVector_Cosine(t *testing.T) {
	units := paperUnits(
		"rotary rotary encoding",
		"attention softmax",
		"encoding layer",
	)
	ix := BuildVector(corpus.Paper, units)

	hits := ix.Query("rotary", 10)
	if len(hits) != 1 || hits[0].ID != "p00000" {
		t.Fatalf("Query() = %v, want p00000 only", hits)
	}

	// doc0 weights: rotary 2*ln3, encoding 1*ln(3/2)
	r := 2 * math.Log(3)
	e := math.Log(1.5)
	want := r / math.Sqrt(r*r+e*e)
	if math.Abs(hits[0].Score-want) > 1e-12 {
		t.Errorf("score = %v, want %v", hits[0].Score, want)
	}
}

func TestVector_ScoresWithinUnitInterval(t *testing.T) {
	ix := BuildVector(corpus.Paper, paperUnits(
		"rotary encoding",
		"attention softmax",
		"encoding layer norm",
	))
	for _, h := range ix.Query("rotary encoding", 10) {
		if h.Score <= 0 || h.Score > 1+1e-9 {
			t.Errorf("score %v outside (0,1]", h.Score)
		}
	}
	hits := ix.Query("rotary encoding", 10)
	if hits[0].ID != "p00000" || math.Abs(hits[0].Score-1) > 1e-9 {
		t.Errorf("identical text should score 1, got %v", hits)
	}
}

func TestVector_UnseenAndUbiquitousTerms(t *testing.T) {
	ix := BuildVector(corpus.Paper, paperUnits("the model", "the data"))
	if hits := ix.Query("unseen", 5); len(hits) != 0 {
		t.Errorf("Query(unseen) = %v, want none", hits)
	}
	// "the" occurs in every document so its idf is zero.
	if hits := ix.Query("the", 5); len(hits) != 0 {
		t.Errorf("Query(the) = %v, want none", hits)
	}
}

func TestVector_Deterministic(t *testing.T) {
	ix := BuildVector(corpus.Paper, paperUnits(
		"scaled dot product attention",
		"multi head attention with rotary position",
		"position wise feed forward",
		"dropout and layer norm after attention",
	))
	first := ix.Query("rotary attention position head", 10)
	for i := 0; i < 20; i++ {
		if got := ix.Query("rotary attention position head", 10); !reflect.DeepEqual(got, first) {
			t.Fatalf("Query() run %d = %v, want %v", i, got, first)
		}
	}
}

func TestBuild_EmptyCorpus(t *testing.T) {
	lex := BuildLexical(corpus.Code, nil)
	vec := BuildVector(corpus.Code, nil)
	if lex.Len() != 0 || vec.Len() != 0 {
		t.Errorf("Len() = %d/%d, want 0", lex.Len(), vec.Len())
	}
	if hits := lex.Query("anything", 5); hits != nil {
		t.Errorf("lexical Query() = %v, want nil", hits)
	}
	if hits := vec.Query("anything", 5); hits != nil {
		t.Errorf("vector Query() = %v, want nil", hits)
	}
}
