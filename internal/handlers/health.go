package handlers

import (
	"context"
	"net/http"
	"time"

	"paperqa/internal/contextutil"
)

// Pinger checks a dependency's availability; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// SnapshotCounter reports how many project snapshots are published.
type SnapshotCounter interface {
	Len() int
}

// ModelStatus reports whether a language model is configured.
type ModelStatus interface {
	Configured() bool
}

// HealthHandler handles HTTP requests for health checks.
type HealthHandler struct {
	db                 Pinger
	snapshots          SnapshotCounter
	model              ModelStatus
	healthCheckTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger, snapshots SnapshotCounter, model ModelStatus) *HealthHandler {
	return &HealthHandler{
		db:                 db,
		snapshots:          snapshots,
		model:              model,
		healthCheckTimeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
//
// swagger:model HealthResponse
type HealthResponse struct {
	// Overall health status: "healthy", "degraded", or "unhealthy"
	Status string `json:"status"`

	// Timestamp of the health check
	Timestamp string `json:"timestamp"`

	// Individual check results
	Checks map[string]string `json:"checks"`

	// Number of published project snapshots
	Projects int `json:"projects"`

	// Whether answers come from a language model or the placeholder
	LLMConfigured bool `json:"llm_configured"`

	// List of issues (only present if status is degraded or unhealthy)
	Issues []string `json:"issues,omitempty"`
}

// ServeHTTP handles HTTP requests for health checks.
//
// The service is unhealthy when the database is unreachable and degraded when
// no project is loaded. An unconfigured model is reported but is not an issue:
// answers then use the placeholder.
//
// swagger:route GET /api/health healthCheck
//
// responses:
//
//	'200':
//	  description: System is healthy or degraded
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
//	'503':
//	  description: System is unhealthy
//	  schema:
//	    "$ref": "#/definitions/HealthResponse"
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.healthCheckTimeout)
	defer cancel()

	checks := make(map[string]string)
	var issues []string
	status, httpStatus := "healthy", http.StatusOK

	if h.db != nil {
		if err := h.db.PingContext(checkCtx); err != nil {
			logger.WarnContext(ctx, "database health check failed", "error", err)
			checks["database"] = "error"
			issues = append(issues, "database_unavailable")
			status, httpStatus = "unhealthy", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	projects := 0
	if h.snapshots != nil {
		projects = h.snapshots.Len()
	}
	if projects == 0 {
		checks["projects"] = "empty"
		issues = append(issues, "no_projects_loaded")
		if status == "healthy" {
			status = "degraded"
		}
	} else {
		checks["projects"] = "ok"
	}

	configured := h.model != nil && h.model.Configured()
	if configured {
		checks["llm"] = "configured"
	} else {
		checks["llm"] = "not_configured"
	}

	writeJSON(ctx, w, httpStatus, HealthResponse{
		Status:        status,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Checks:        checks,
		Projects:      projects,
		LLMConfigured: configured,
		Issues:        issues,
	})
}
