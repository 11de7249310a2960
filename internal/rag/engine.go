package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_engine.go -package=mocks paperqa/internal/rag Engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"paperqa/internal/contextutil"
	"paperqa/internal/llm"
	"paperqa/internal/project"
	"paperqa/internal/route"
	"paperqa/internal/service"
	"paperqa/internal/storage"
)

// MaxQuestionRunes bounds the accepted question length.
const MaxQuestionRunes = 4000

// Engine answers questions about a project from its paper and code.
type Engine interface {
	// Ask answers a question and returns the final result.
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
	// AskStream validates the request, routes it and assembles evidence, then
	// streams the answer. Errors before streaming are returned directly.
	AskStream(ctx context.Context, req AskRequest) (<-chan Event, error)
}

// AskRequest is a question about one project.
type AskRequest struct {
	ProjectID string `json:"-"`
	Question  string `json:"question"`
	// Debug adds the evidence and route details to the response.
	Debug bool `json:"debug,omitempty"`
}

// AskResponse is the result of a non-streaming question.
type AskResponse struct {
	Result
	Debug *DebugInfo `json:"debug,omitempty"`
}

// DebugInfo describes how an answer's evidence was chosen.
type DebugInfo struct {
	Route    route.Decision  `json:"route"`
	Evidence []DebugEvidence `json:"evidence"`
}

// DebugEvidence is one evidence item with its scores.
type DebugEvidence struct {
	Label          string  `json:"label"`
	Kind           string  `json:"kind"`
	UnitID         string  `json:"unit_id"`
	Source         Source  `json:"source"`
	Rank           int     `json:"rank"`
	Score          float64 `json:"score"`
	LexicalScore   float64 `json:"lexical_score"`
	VectorScore    float64 `json:"vector_score"`
	Path           string  `json:"path,omitempty"`
	SymbolName     string  `json:"symbol_name,omitempty"`
	StartLine      int     `json:"start_line,omitempty"`
	EndLine        int     `json:"end_line,omitempty"`
	ParagraphIndex *int    `json:"paragraph_index,omitempty"`
	Page           int     `json:"page,omitempty"`
	AlignedWith    string  `json:"aligned_with,omitempty"`
	Excerpt        string  `json:"excerpt"`
}

// SnapshotSource returns the current snapshot of a project.
type SnapshotSource interface {
	Get(projectID string) (*project.Snapshot, error)
}

// Router decides which corpora answer a question.
type Router interface {
	Route(ctx context.Context, question string) route.Decision
}

type ragEngine struct {
	snapshots SnapshotSource
	router    Router
	assembler *Assembler
	generator Generator
	history   storage.QAStore
	params    llm.ChatParams
	stateHook StateHook
}

// Option configures the engine.
type Option func(*ragEngine)

// WithHistory records completed answers in store.
func WithHistory(store storage.QAStore) Option {
	return func(e *ragEngine) { e.history = store }
}

// WithChatParams sets the generation parameters.
func WithChatParams(p llm.ChatParams) Option {
	return func(e *ragEngine) { e.params = p }
}

// WithStateHook observes request state transitions.
func WithStateHook(h StateHook) Option {
	return func(e *ragEngine) { e.stateHook = h }
}

// NewEngine creates an Engine. A nil generator behaves as an unconfigured model.
func NewEngine(snapshots SnapshotSource, router Router, assembler *Assembler, generator Generator, opts ...Option) Engine {
	e := &ragEngine{
		snapshots: snapshots,
		router:    router,
		assembler: assembler,
		generator: generator,
	}
	if e.generator == nil {
		e.generator = unconfigured{}
	}
	if e.assembler == nil {
		e.assembler = NewAssembler(DefaultAssemblerConfig())
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type unconfigured struct{}

func (unconfigured) StreamChatWithMessages(context.Context, []llm.Message, llm.ChatParams, func(string) error) (string, error) {
	return "", llm.ErrNotConfigured
}

func validateAsk(req AskRequest) error {
	if strings.TrimSpace(req.ProjectID) == "" {
		return &service.ValidationError{Field: "project_id", Message: "cannot be empty"}
	}
	q := strings.TrimSpace(req.Question)
	if q == "" {
		return &service.ValidationError{Field: "question", Message: "cannot be empty"}
	}
	if utf8.RuneCountInString(q) > MaxQuestionRunes {
		return &service.ValidationError{Field: "question", Message: fmt.Sprintf("must be at most %d characters", MaxQuestionRunes)}
	}
	return nil
}

// prepare runs everything up to the composed prompt. The returned set is frozen.
func (e *ragEngine) prepare(ctx context.Context, req AskRequest) (*task, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := validateAsk(req); err != nil {
		return nil, err
	}
	question := strings.TrimSpace(req.Question)

	snap, err := e.snapshots.Get(req.ProjectID)
	if errors.Is(err, project.ErrProjectNotFound) {
		return nil, fmt.Errorf("%w: project %s", service.ErrNotFound, req.ProjectID)
	}
	if err != nil {
		return nil, service.WrapError(err, "failed to load project snapshot")
	}

	logger.InfoContext(ctx, "answer requested",
		"project_id", req.ProjectID,
		"question_length", len(question),
		"snapshot_built_at", snap.BuiltAt,
	)

	t := &task{
		projectID: req.ProjectID,
		question:  question,
		hook:      e.stateHook,
		started:   time.Now(),
	}

	decision := e.router.Route(ctx, question)
	t.state = StateRouteDecided
	if t.hook != nil {
		t.hook(ctx, t.projectID, StateRouteDecided)
	}
	if err := ctx.Err(); err != nil {
		t.advance(ctx, StateCancelled)
		return nil, err
	}

	t.set = e.assembler.Assemble(ctx, snap, question, decision)
	t.advance(ctx, StateEvidenceAssembled)

	t.messages = ComposeMessages(question, t.set, snap.Manifest.FocusPoints)
	t.advance(ctx, StatePromptComposed)

	logger.DebugContext(ctx, "prompt composed",
		"project_id", req.ProjectID,
		"route", decision.Label,
		"provenance", decision.Provenance,
		"prompt_length", len(t.messages[len(t.messages)-1].Content),
	)
	return t, nil
}

// AskStream implements Engine.
func (e *ragEngine) AskStream(ctx context.Context, req AskRequest) (<-chan Event, error) {
	t, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan Event, 16)
	go e.stream(ctx, t, out)
	return out, nil
}

// Ask implements Engine. It drains the stream, so history has been written when it returns.
func (e *ragEngine) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	t, err := e.prepare(ctx, req)
	if err != nil {
		return AskResponse{}, err
	}
	out := make(chan Event, 16)
	go e.stream(ctx, t, out)

	var (
		result *Result
		strErr error
	)
	for ev := range out {
		switch ev.Type {
		case EventDone:
			result = ev.Result
			ev.Ack(true)
		case EventError:
			strErr = ev.Err
		}
	}
	if strErr != nil {
		return AskResponse{}, strErr
	}
	if result == nil {
		if err := ctx.Err(); err != nil {
			return AskResponse{}, err
		}
		return AskResponse{}, errors.New("answer stream ended without a result")
	}

	resp := AskResponse{Result: *result}
	if req.Debug {
		resp.Debug = buildDebugInfo(t.set)
	}
	return resp, nil
}

func buildDebugInfo(set Set) *DebugInfo {
	info := &DebugInfo{
		Route:    set.Route,
		Evidence: make([]DebugEvidence, 0, len(set.Items)),
	}
	for i, ev := range set.Items {
		base := ev.Base()
		d := DebugEvidence{
			Label:        EvidenceLabel(i),
			Kind:         ev.Kind(),
			UnitID:       base.UnitID,
			Source:       base.Source,
			Rank:         base.RankWithinSource,
			Score:        base.Score,
			LexicalScore: base.LexicalScore,
			VectorScore:  base.VectorScore,
			Excerpt:      excerptOf(ev.Excerpt()),
		}
		switch e := ev.(type) {
		case PaperEvidence:
			idx := e.ParagraphIndex
			d.ParagraphIndex = &idx
			d.Page = e.Page
		case AlignmentEvidence:
			d.AlignedWith = e.ParagraphID
		}
		if code, ok := codeOf(ev); ok {
			d.Path = code.Path
			d.SymbolName = code.SymbolName
			d.StartLine = code.StartLine
			d.EndLine = code.EndLine
		}
		info.Evidence = append(info.Evidence, d)
	}
	return info
}
