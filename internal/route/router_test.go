package route_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"paperqa/internal/corpus"
	"paperqa/internal/llm"
	"paperqa/internal/route"
	"paperqa/internal/route/mocks"
)

func TestRouter_Deterministic(t *testing.T) {
	r := route.New()

	tests := []struct {
		name     string
		question string
		want     route.Label
	}{
		{"implementation words", "Show the implementation of the attention function", route.CodeOnly},
		{"snake case identifier", "What does rotary_embedding return?", route.CodeOnly},
		{"camel case identifier", "Where is buildVocab called?", route.CodeOnly},
		{"call syntax", "What does attention() compute?", route.CodeOnly},
		{"file name", "What is in model.py?", route.CodeOnly},
		{"paper vocabulary", "What does the paper claim in section 3?", route.PaperOnly},
		{"equation", "Explain equation 2.", route.PaperOnly},
		{"both", "How is equation 3 implemented in the code?", route.Hybrid},
		{"chinese code", "这个函数做什么?", route.CodeOnly},
		{"chinese paper", "论文的主要贡献是什么?", route.PaperOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Route(context.Background(), tt.question)
			if d.Label != tt.want {
				t.Errorf("Route(%q) = %v, want %v (code=%d paper=%d)", tt.question, d.Label, tt.want, d.CodeAffinity, d.PaperAffinity)
			}
			if d.Provenance != route.Deterministic {
				t.Errorf("Provenance = %v, want deterministic", d.Provenance)
			}
		})
	}
}

func TestRouter_AmbiguousWithoutClassifier(t *testing.T) {
	d := route.New().Route(context.Background(), "What positional encoding is used?")
	if d.Label != route.Fallback || d.Provenance != route.FallbackProvenance {
		t.Errorf("Route() = %+v, want fallback/fallback", d)
	}
}

func TestRouter_ModelAssisted(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		err      error
		want     route.Label
		wantProv route.Provenance
	}{
		{"clean label", "paper_only", nil, route.PaperOnly, route.ModelAssisted},
		{"noisy label", "  \"Hybrid.\"\n", nil, route.Hybrid, route.ModelAssisted},
		{"label in sentence", "The answer is code_only", nil, route.CodeOnly, route.ModelAssisted},
		{"two labels", "paper_only or hybrid", nil, route.Fallback, route.FallbackProvenance},
		{"garbage", "I cannot tell", nil, route.Fallback, route.FallbackProvenance},
		{"upstream error", "", errors.New("boom"), route.Fallback, route.FallbackProvenance},
		{"not configured", "", llm.ErrNotConfigured, route.Fallback, route.FallbackProvenance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			classifier := mocks.NewMockClassifier(ctrl)
			classifier.EXPECT().
				Classify(gomock.Any(), gomock.Any()).
				DoAndReturn(func(ctx context.Context, prompt string) (string, error) {
					if !strings.Contains(prompt, "What positional encoding is used?") {
						t.Errorf("prompt does not carry the question: %q", prompt)
					}
					return tt.reply, tt.err
				})

			d := route.New(route.WithClassifier(classifier)).Route(context.Background(), "What positional encoding is used?")
			if d.Label != tt.want || d.Provenance != tt.wantProv {
				t.Errorf("Route() = %v/%v, want %v/%v", d.Label, d.Provenance, tt.want, tt.wantProv)
			}
		})
	}
}

func TestRouter_DeterministicSkipsClassifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	classifier := mocks.NewMockClassifier(ctrl)
	classifier.EXPECT().Classify(gomock.Any(), gomock.Any()).Times(0)

	d := route.New(route.WithClassifier(classifier)).Route(context.Background(), "Which function computes the loss?")
	if d.Label != route.CodeOnly {
		t.Errorf("Route() = %v, want code_only", d.Label)
	}
}

func TestRouter_ClassifierTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	classifier := mocks.NewMockClassifier(ctrl)
	classifier.EXPECT().
		Classify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, prompt string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})

	start := time.Now()
	d := route.New(route.WithClassifier(classifier), route.WithTimeout(20*time.Millisecond)).
		Route(context.Background(), "What positional encoding is used?")
	if d.Label != route.Fallback {
		t.Errorf("Route() = %v, want fallback", d.Label)
	}
	if time.Since(start) > time.Second {
		t.Error("classification deadline not applied")
	}
}

func TestLabel_Corpora(t *testing.T) {
	tests := []struct {
		label  route.Label
		want   []corpus.Kind
		demand bool
	}{
		{route.PaperOnly, []corpus.Kind{corpus.Paper}, true},
		{route.CodeOnly, []corpus.Kind{corpus.Code}, true},
		{route.Hybrid, []corpus.Kind{corpus.Paper, corpus.Code}, false},
		{route.Fallback, []corpus.Kind{corpus.Paper, corpus.Code}, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.label), func(t *testing.T) {
			got := tt.label.Corpora()
			if len(got) != len(tt.want) {
				t.Fatalf("Corpora() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Corpora()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
			if _, ok := tt.label.Demands(); ok != tt.demand {
				t.Errorf("Demands() ok = %v, want %v", ok, tt.demand)
			}
		})
	}
}

func TestAffinity(t *testing.T) {
	tests := []struct {
		question  string
		wantCode  int
		wantPaper int
	}{
		{"What positional encoding is used?", 0, 0},
		{"Which class implements Figure 2?", 2, 1},
		{"See utils/data_loader.py line 40", 2, 0},
		{"", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			code, paper := route.Affinity(tt.question)
			if code != tt.wantCode || paper != tt.wantPaper {
				t.Errorf("Affinity(%q) = %d, %d; want %d, %d", tt.question, code, paper, tt.wantCode, tt.wantPaper)
			}
		})
	}
}
