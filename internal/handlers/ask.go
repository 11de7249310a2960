package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"paperqa/internal/contextutil"
	"paperqa/internal/rag"
)

// AskHandler answers a question about a project and returns the terminal payload.
type AskHandler struct {
	engine rag.Engine
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(engine rag.Engine) *AskHandler {
	return &AskHandler{engine: engine}
}

// AskRequest represents the HTTP request payload for questions.
//
// swagger:model AskRequest
type AskRequest struct {
	// The question about the paper or its code
	Question string `json:"question"`
}

// AnswerPayload is the terminal answer. The streaming endpoint sends it as the
// done event; the non-streaming endpoint returns it as the response body.
//
// swagger:model AnswerPayload
type AnswerPayload struct {
	Done bool `json:"done"`
	rag.Result
	// Debug contains the evidence and route details when ?debug=true.
	Debug *rag.DebugInfo `json:"debug,omitempty"`
}

// ServeHTTP handles HTTP requests for questions.
//
// swagger:route POST /api/v1/projects/{projectID}/ask askQuestion
//
// # Ask a question about a project
//
// Routes the question to the paper, the code or both, assembles evidence and
// returns the generated answer with cited code locations.
// Use the `debug=true` query parameter to include the evidence items with scores.
//
// responses:
//
//	'200':
//	  description: Answer with code references and evidence mix
//	  schema:
//	    "$ref": "#/definitions/AnswerPayload"
//	'400':
//	  description: Invalid question
//	'404':
//	  description: Unknown project
//	'502':
//	  description: Language model request failed
//	'500':
//	  description: Internal server error
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.engine.Ask(ctx, rag.AskRequest{
		ProjectID: chi.URLParam(r, "projectID"),
		Question:  req.Question,
		Debug:     debugRequested(r),
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to answer question")
		return
	}

	writeJSON(ctx, w, http.StatusOK, AnswerPayload{
		Done:   true,
		Result: resp.Result,
		Debug:  resp.Debug,
	})
}

func debugRequested(r *http.Request) bool {
	v := r.URL.Query().Get("debug")
	return strings.EqualFold(v, "true") || v == "1"
}
