package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paperqa/internal/contextutil"
	"paperqa/internal/llm"
	"paperqa/internal/route"
	"paperqa/internal/service"
	"paperqa/internal/storage"
)

// State is the lifecycle state of one answer request.
type State int

const (
	StateRouteDecided State = iota
	StateEvidenceAssembled
	StatePromptComposed
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRouteDecided:
		return "route_decided"
	case StateEvidenceAssembled:
		return "evidence_assembled"
	case StatePromptComposed:
		return "prompt_composed"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// canAdvance reports whether from -> to is a legal transition. Cancellation may
// happen from any non-terminal state; failure only while streaming.
func canAdvance(from, to State) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StateCancelled:
		return true
	case StateFailed, StateCompleted:
		return from == StateStreaming
	default:
		return to == from+1
	}
}

// EventType discriminates stream events.
type EventType string

const (
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one element of an answer stream. A stream carries zero or more chunk
// events followed by at most one done or error event. A cancelled stream ends
// without a terminal event.
//
// The consumer must Ack a done event once it has delivered it (or failed to).
// The answer is recorded in history only after a positive Ack.
type Event struct {
	Type   EventType
	Chunk  string
	Result *Result
	Err    error

	ack chan<- bool
}

// Ack reports whether a done event reached the client. It is a no-op for other
// events and for repeated calls.
func (ev Event) Ack(delivered bool) {
	if ev.ack == nil {
		return
	}
	select {
	case ev.ack <- delivered:
	default:
	}
}

// Result is the final structured answer.
type Result struct {
	Answer               string      `json:"answer"`
	CodeRefs             []CodeRef   `json:"code_refs"`
	Route                route.Label `json:"route"`
	EvidenceMix          Mix         `json:"evidence_mix"`
	InsufficientEvidence bool        `json:"insufficient_evidence"`
}

// Generator is the streaming text generation capability.
type Generator interface {
	StreamChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams, callback func(chunk string) error) (string, error)
}

// StateHook observes state transitions of answer requests.
type StateHook func(ctx context.Context, projectID string, state State)

// task is one answer request after its prompt has been composed.
type task struct {
	projectID string
	question  string
	set       Set
	messages  []llm.Message
	state     State
	hook      StateHook
	started   time.Time
}

func (t *task) advance(ctx context.Context, to State) {
	if !canAdvance(t.state, to) {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "illegal answer state transition",
			"project_id", t.projectID,
			"from", t.state.String(),
			"to", to.String(),
		)
		return
	}
	t.state = to
	if t.hook != nil {
		t.hook(ctx, t.projectID, to)
	}
}

// stream runs t and writes its events to out, closing out when done. On success
// the answer is recorded in history only after the consumer acks the done event.
func (e *ragEngine) stream(ctx context.Context, t *task, out chan<- Event) {
	defer close(out)
	logger := contextutil.LoggerFromContext(ctx)

	send := func(ev Event) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	cancelled := func() {
		t.advance(ctx, StateCancelled)
		logger.InfoContext(ctx, "answer cancelled",
			"project_id", t.projectID,
			"duration_ms", time.Since(t.started).Milliseconds(),
		)
	}

	t.advance(ctx, StateStreaming)

	var prefix string
	if t.set.Insufficient {
		prefix = MissingEvidenceNotice + "\n\n"
		if !send(Event{Type: EventChunk, Chunk: prefix}) {
			cancelled()
			return
		}
	}

	text, err := e.generator.StreamChatWithMessages(ctx, t.messages, e.params, func(chunk string) error {
		if !send(Event{Type: EventChunk, Chunk: chunk}) {
			return context.Cause(ctx)
		}
		return nil
	})
	switch {
	case ctx.Err() != nil:
		cancelled()
		return
	case errors.Is(err, llm.ErrNotConfigured):
		text = PlaceholderAnswer(t.set)
		if !send(Event{Type: EventChunk, Chunk: text}) {
			cancelled()
			return
		}
	case err != nil:
		t.advance(ctx, StateFailed)
		logger.ErrorContext(ctx, "answer generation failed", "project_id", t.projectID, "error", err)
		send(Event{Type: EventError, Err: fmt.Errorf("%w: %w", service.ErrExternalService, err)})
		return
	}

	answer := prefix + text
	result := &Result{
		Answer:               answer,
		CodeRefs:             ExtractCodeRefs(answer, t.set),
		Route:                t.set.Route.Label,
		EvidenceMix:          t.set.Mix,
		InsufficientEvidence: t.set.Insufficient,
	}
	if result.CodeRefs == nil {
		result.CodeRefs = []CodeRef{}
	}

	ack := make(chan bool, 1)
	if !send(Event{Type: EventDone, Result: result, ack: ack}) {
		cancelled()
		return
	}
	var delivered bool
	select {
	case delivered = <-ack:
	case <-ctx.Done():
	}
	if !delivered {
		cancelled()
		return
	}
	t.advance(ctx, StateCompleted)

	logger.InfoContext(ctx, "answer completed",
		"project_id", t.projectID,
		"route", result.Route,
		"answer_length", len(answer),
		"code_refs", len(result.CodeRefs),
		"duration_ms", time.Since(t.started).Milliseconds(),
	)

	if e.history == nil {
		return
	}
	entry := &storage.QAEntry{
		ProjectID:            t.projectID,
		Question:             t.question,
		Answer:               answer,
		Route:                string(result.Route),
		Provenance:           string(t.set.Route.Provenance),
		CodeRefs:             result.CodeRefs,
		PaperCount:           result.EvidenceMix.PaperCount,
		CodeCount:            result.EvidenceMix.CodeCount,
		InsufficientEvidence: result.InsufficientEvidence,
	}
	// Delivered answers are recorded regardless of later cancellation.
	if err := e.history.AppendQaEntry(context.WithoutCancel(ctx), entry); err != nil {
		logger.ErrorContext(ctx, "failed to record qa entry", "project_id", t.projectID, "error", err)
	}
}
