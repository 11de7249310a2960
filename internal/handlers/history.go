package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"paperqa/internal/contextutil"
	"paperqa/internal/service"
	"paperqa/internal/storage"
)

// MaxHistoryLimit bounds the limit query parameter of the history endpoint.
const MaxHistoryLimit = 200

// HistoryHandler lists recorded question/answer entries of a project.
type HistoryHandler struct {
	store storage.QAStore
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(store storage.QAStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// HistoryResponse lists QA entries newest first.
//
// swagger:model HistoryResponse
type HistoryResponse struct {
	ProjectID string            `json:"project_id"`
	Entries   []storage.QAEntry `json:"entries"`
}

// ServeHTTP handles GET /api/v1/projects/{projectID}/qa.
//
// swagger:route GET /api/v1/projects/{projectID}/qa listHistory
//
// # List answered questions for a project
//
// Optional `limit` query parameter, default 50, at most 200.
//
// responses:
//
//	'200':
//	  schema:
//	    "$ref": "#/definitions/HistoryResponse"
//	'400':
//	  description: Invalid limit
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	projectID := chi.URLParam(r, "projectID")
	limit := storage.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			handleServiceError(ctx, w, &service.ValidationError{Field: "limit", Message: "must be a positive integer"}, "")
			return
		}
		limit = min(n, MaxHistoryLimit)
	}

	entries, err := h.store.ListByProject(ctx, projectID, limit)
	if err != nil {
		handleServiceError(ctx, w, service.WrapError(err, "failed to list history"), "Failed to list history")
		return
	}
	if entries == nil {
		entries = []storage.QAEntry{}
	}
	writeJSON(ctx, w, http.StatusOK, HistoryResponse{ProjectID: projectID, Entries: entries})
}
