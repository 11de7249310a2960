// Package route classifies a question into the corpora it should be answered from.
package route

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_classifier.go -package=mocks paperqa/internal/route Classifier

import (
	"context"
	"strings"
	"time"
	"unicode"

	"paperqa/internal/contextutil"
	"paperqa/internal/corpus"
)

// Label is the classified intent of a question.
type Label string

const (
	PaperOnly Label = "paper_only"
	CodeOnly  Label = "code_only"
	Hybrid    Label = "hybrid"
	Fallback  Label = "fallback"
)

var labels = []Label{PaperOnly, CodeOnly, Hybrid, Fallback}

// Corpora returns the corpora a label targets.
func (l Label) Corpora() []corpus.Kind {
	switch l {
	case PaperOnly:
		return []corpus.Kind{corpus.Paper}
	case CodeOnly:
		return []corpus.Kind{corpus.Code}
	default:
		return []corpus.Kind{corpus.Paper, corpus.Code}
	}
}

// Demands returns the single corpus a label requires, if any.
func (l Label) Demands() (corpus.Kind, bool) {
	switch l {
	case PaperOnly:
		return corpus.Paper, true
	case CodeOnly:
		return corpus.Code, true
	default:
		return "", false
	}
}

// Provenance records which stage of the router produced a label.
type Provenance string

const (
	Deterministic Provenance = "deterministic"
	ModelAssisted Provenance = "model_assisted"
	// FallbackProvenance means neither stage produced a label.
	FallbackProvenance Provenance = "fallback"
)

// Decision is the router output.
type Decision struct {
	Label         Label      `json:"label"`
	Provenance    Provenance `json:"provenance"`
	CodeAffinity  int        `json:"code_affinity"`
	PaperAffinity int        `json:"paper_affinity"`
}

// Classifier is the model-assisted classification capability.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// DefaultClassifyTimeout bounds the model-assisted stage.
const DefaultClassifyTimeout = 5 * time.Second

// Router decides the route of a question.
type Router struct {
	classifier Classifier
	timeout    time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithClassifier enables the model-assisted stage for ambiguous questions.
func WithClassifier(c Classifier) Option {
	return func(r *Router) { r.classifier = c }
}

// WithTimeout bounds the classification call.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Router. Without a classifier ambiguous questions route to Fallback.
func New(opts ...Option) *Router {
	r := &Router{timeout: DefaultClassifyTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route classifies question. It never fails: every problem in the model-assisted
// stage degrades to Fallback.
func (r *Router) Route(ctx context.Context, question string) Decision {
	logger := contextutil.LoggerFromContext(ctx)

	codeScore, paperScore := Affinity(question)
	d := Decision{CodeAffinity: codeScore, PaperAffinity: paperScore}

	switch {
	case codeScore > 0 && paperScore == 0:
		d.Label, d.Provenance = CodeOnly, Deterministic
	case paperScore > 0 && codeScore == 0:
		d.Label, d.Provenance = PaperOnly, Deterministic
	case codeScore > 0 && paperScore > 0:
		d.Label, d.Provenance = Hybrid, Deterministic
	default:
		d.Label, d.Provenance = r.classify(ctx, question)
	}

	logger.DebugContext(ctx, "question routed",
		"route", d.Label,
		"provenance", d.Provenance,
		"code_affinity", codeScore,
		"paper_affinity", paperScore,
	)
	return d
}

func (r *Router) classify(ctx context.Context, question string) (Label, Provenance) {
	if r.classifier == nil {
		return Fallback, FallbackProvenance
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.classifier.Classify(cctx, ClassificationPrompt(question))
	if err != nil {
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "route classification failed", "error", err)
		return Fallback, FallbackProvenance
	}
	label, ok := ParseLabel(raw)
	if !ok {
		contextutil.LoggerFromContext(ctx).DebugContext(ctx, "unparseable route label", "output", raw)
		return Fallback, FallbackProvenance
	}
	return label, ModelAssisted
}

// ClassificationPrompt is the prompt sent to the classifier.
func ClassificationPrompt(question string) string {
	var b strings.Builder
	b.WriteString("Classify the question about a research paper and its code into exactly one label.\n")
	b.WriteString("paper_only: answered from the paper text alone.\n")
	b.WriteString("code_only: answered from the source code alone.\n")
	b.WriteString("hybrid: needs both the paper and the code.\n")
	b.WriteString("fallback: unclear.\n")
	b.WriteString("Reply with the label only.\n\n")
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	return b.String()
}

// ParseLabel extracts a label from classifier output. It accepts the bare label
// with surrounding punctuation or whitespace, or a reply that mentions exactly one label.
func ParseLabel(raw string) (Label, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, " \t\r\n\"'`.:;,!*")
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	for _, l := range labels {
		if s == string(l) {
			return l, true
		}
	}

	var found []Label
	for _, l := range labels {
		if strings.Contains(s, string(l)) {
			found = append(found, l)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return "", false
}

var codeWords = map[string]bool{
	"function": true, "functions": true,
	"class": true, "classes": true,
	"method": true, "methods": true,
	"line": true, "lines": true,
	"implementation": true, "implement": true, "implemented": true, "implements": true,
	"algorithm": true, "algorithms": true,
	"code": true, "source": true,
	"variable": true, "variables": true,
	"repo": true, "repository": true,
}

var paperWords = map[string]bool{
	"paper": true, "papers": true,
	"section": true, "sections": true,
	"equation": true, "equations": true, "eq": true,
	"figure": true, "figures": true, "fig": true,
	"abstract": true,
	"theorem": true, "theorems": true, "lemma": true, "proof": true,
	"author": true, "authors": true,
	"appendix": true,
}

var codeExtensions = map[string]bool{
	"py": true, "go": true, "js": true, "ts": true, "java": true, "c": true, "cc": true,
	"cpp": true, "h": true, "hpp": true, "rs": true, "rb": true, "jl": true, "cu": true,
	"sh": true, "ipynb": true, "scala": true, "kt": true, "swift": true,
}

var (
	codeSubstrings  = []string{"代码", "函数", "实现", "类", "方法"}
	paperSubstrings = []string{"论文", "章节", "公式", "图", "摘要", "定理", "作者"}
)

// Affinity scores how strongly question points at the code and at the paper.
func Affinity(question string) (code, paper int) {
	for _, raw := range strings.Fields(question) {
		tok := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '(' && r != ')' && r != '.'
		})
		tok = strings.TrimRight(tok, ".")
		if tok == "" {
			continue
		}
		word := strings.ToLower(strings.Trim(tok, "()"))
		switch {
		case codeWords[word]:
			code++
		case paperWords[word]:
			paper++
		case identifierShaped(tok):
			code++
		}
	}

	for _, s := range codeSubstrings {
		if strings.Contains(question, s) {
			code++
		}
	}
	for _, s := range paperSubstrings {
		if strings.Contains(question, s) {
			paper++
		}
	}
	return code, paper
}

// identifierShaped reports whether tok looks like a code identifier or file name.
func identifierShaped(tok string) bool {
	if strings.HasSuffix(tok, "()") && len(tok) > 2 {
		return true
	}
	name := strings.Trim(tok, "()")
	if i := strings.LastIndexByte(name, '.'); i > 0 && i < len(name)-1 {
		if codeExtensions[strings.ToLower(name[i+1:])] {
			return true
		}
	}
	if i := strings.IndexByte(name, '_'); i > 0 && i < len(name)-1 {
		return true
	}
	runes := []rune(name)
	for i := 1; i < len(runes); i++ {
		if unicode.IsLower(runes[i-1]) && unicode.IsUpper(runes[i]) {
			return true
		}
	}
	return false
}
