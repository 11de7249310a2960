package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"paperqa/internal/contextutil"
	"paperqa/internal/corpus"
	"paperqa/internal/project"
	"paperqa/internal/service"
	"paperqa/internal/storage"
)

// ProjectRegistry is the part of project.Registry the handlers use.
type ProjectRegistry interface {
	Get(projectID string) (*project.Snapshot, error)
	List() []*project.Snapshot
	Reload(ctx context.Context, projectID string) (*project.Snapshot, error)
}

// ProjectsHandler serves project listing, detail and reload.
type ProjectsHandler struct {
	registry ProjectRegistry
	records  storage.ProjectStore
}

// NewProjectsHandler creates a new ProjectsHandler. records may be nil.
func NewProjectsHandler(registry ProjectRegistry, records storage.ProjectStore) *ProjectsHandler {
	return &ProjectsHandler{registry: registry, records: records}
}

// ProjectResponse describes a loaded project.
//
// swagger:model ProjectResponse
type ProjectResponse struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	PaperURL    string        `json:"paper_url,omitempty"`
	RepoURL     string        `json:"repo_url,omitempty"`
	FocusPoints []string      `json:"focus_points"`
	Stats       project.Stats `json:"stats"`
	// FirstSeenAt is when the project was first recorded; absent without a stored record.
	FirstSeenAt *time.Time `json:"first_seen_at,omitempty"`
}

// ProjectListResponse lists the loaded projects.
//
// swagger:model ProjectListResponse
type ProjectListResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

func projectResponse(snap *project.Snapshot) ProjectResponse {
	focus := snap.Manifest.FocusPoints
	if focus == nil {
		focus = []string{}
	}
	name := snap.Manifest.Name
	if name == "" {
		name = snap.ProjectID
	}
	return ProjectResponse{
		ID:          snap.ProjectID,
		Name:        name,
		PaperURL:    snap.Manifest.PaperURL,
		RepoURL:     snap.Manifest.RepoURL,
		FocusPoints: focus,
		Stats:       snap.Stats(),
	}
}

// List handles GET /api/v1/projects.
//
// swagger:route GET /api/v1/projects listProjects
//
// # List loaded projects
//
// responses:
//
//	'200':
//	  schema:
//	    "$ref": "#/definitions/ProjectListResponse"
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	snaps := h.registry.List()
	resp := ProjectListResponse{Projects: make([]ProjectResponse, 0, len(snaps))}
	for _, snap := range snaps {
		resp.Projects = append(resp.Projects, projectResponse(snap))
	}
	writeJSON(r.Context(), w, http.StatusOK, resp)
}

// Get handles GET /api/v1/projects/{projectID}.
//
// swagger:route GET /api/v1/projects/{projectID} getProject
//
// # Get a loaded project with its snapshot statistics
//
// responses:
//
//	'200':
//	  schema:
//	    "$ref": "#/definitions/ProjectResponse"
//	'404':
//	  description: Unknown project
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")

	snap, err := h.registry.Get(projectID)
	if err != nil {
		handleServiceError(ctx, w, projectError(projectID, err), "Failed to load project")
		return
	}

	resp := projectResponse(snap)
	if h.records != nil {
		rec, err := h.records.GetByID(ctx, projectID)
		switch {
		case err == nil:
			created := rec.CreatedAt
			resp.FirstSeenAt = &created
		case errors.Is(err, storage.ErrNotFound):
		default:
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to load project record", "project_id", projectID, "error", err)
		}
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// Reload handles POST /api/v1/projects/{projectID}/reload.
//
// swagger:route POST /api/v1/projects/{projectID}/reload reloadProject
//
// # Rebuild a project's indices and publish the new snapshot
//
// In-flight questions keep the snapshot they started with.
//
// responses:
//
//	'200':
//	  schema:
//	    "$ref": "#/definitions/ProjectResponse"
//	'404':
//	  description: No ingestion output for the project
//	'500':
//	  description: Rebuild failed; the previous snapshot stays published
func (h *ProjectsHandler) Reload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")
	if projectID == "" {
		handleServiceError(ctx, w, &service.ValidationError{Field: "project_id", Message: "cannot be empty"}, "")
		return
	}

	snap, err := h.registry.Reload(ctx, projectID)
	if err != nil {
		handleServiceError(ctx, w, projectError(projectID, err), "Failed to rebuild project")
		return
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "project reloaded", "project_id", projectID)
	writeJSON(ctx, w, http.StatusOK, projectResponse(snap))
}

// projectError maps registry and ingestion lookups onto the service taxonomy.
func projectError(projectID string, err error) error {
	if errors.Is(err, project.ErrProjectNotFound) || errors.Is(err, corpus.ErrProjectNotFound) {
		return fmt.Errorf("%w: project %s", service.ErrNotFound, projectID)
	}
	return err
}
