package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paperqa/internal/contextutil"
	"paperqa/internal/rag"
	"paperqa/internal/service"
)

// AskStreamHandler streams an answer as Server-Sent Events.
type AskStreamHandler struct {
	engine rag.Engine
}

// NewAskStreamHandler creates a new AskStreamHandler.
func NewAskStreamHandler(engine rag.Engine) *AskStreamHandler {
	return &AskStreamHandler{engine: engine}
}

type chunkEvent struct {
	Chunk string `json:"chunk"`
}

// ServeHTTP handles streaming question requests.
//
// swagger:route POST /api/v1/projects/{projectID}/ask-stream askQuestionStream
//
// # Ask a question and stream the answer
//
// Each event is `data: <json>`: zero or more `{"chunk": "..."}` events followed by
// exactly one `{"done": true, ...}` or `{"error": "..."}`. Nothing is sent after
// the client disconnects. Validation and unknown projects fail before the stream
// starts with a JSON error body.
func (h *AskStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body for streaming", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	events, err := h.engine.AskStream(ctx, rag.AskRequest{
		ProjectID: chi.URLParam(r, "projectID"),
		Question:  req.Question,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to answer question")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Once a write fails the client is gone; keep draining so the engine can finish.
	broken := false
	write := func(v any) bool {
		if broken || ctx.Err() != nil {
			return false
		}
		payload, err := json.Marshal(v)
		if err != nil {
			logger.ErrorContext(ctx, "failed to encode stream event", "error", err)
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			logger.WarnContext(ctx, "stream write failed", "error", err)
			broken = true
			return false
		}
		flusher.Flush()
		return true
	}

	for ev := range events {
		switch ev.Type {
		case rag.EventChunk:
			write(chunkEvent{Chunk: ev.Chunk})
		case rag.EventDone:
			ev.Ack(write(AnswerPayload{Done: true, Result: *ev.Result}))
		case rag.EventError:
			write(ErrorResponse{Error: service.PublicMessage(ev.Err, "Failed to answer question")})
		}
	}
}
