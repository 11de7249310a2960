package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"paperqa/internal/handlers"
	"paperqa/internal/rag"
	"paperqa/internal/storage"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Engine   rag.Engine
	Projects handlers.ProjectRegistry
	Records  storage.ProjectStore
	History  storage.QAStore
	DB       handlers.Pinger
	Model    handlers.ModelStatus
}

// snapshotCounter adapts a registry that can list snapshots to the health check.
type snapshotCounter struct {
	projects handlers.ProjectRegistry
}

func (c snapshotCounter) Len() int {
	if c.projects == nil {
		return 0
	}
	return len(c.projects.List())
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	askHandler := handlers.NewAskHandler(deps.Engine)
	askStreamHandler := handlers.NewAskStreamHandler(deps.Engine)
	projectsHandler := handlers.NewProjectsHandler(deps.Projects, deps.Records)
	historyHandler := handlers.NewHistoryHandler(deps.History)
	healthHandler := handlers.NewHealthHandler(deps.DB, snapshotCounter{projects: deps.Projects}, deps.Model)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)

		r.Route("/v1/projects", func(r chi.Router) {
			r.Get("/", projectsHandler.List)
			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", projectsHandler.Get)
				r.Post("/reload", projectsHandler.Reload)
				r.Method(http.MethodPost, "/ask", askHandler)
				r.Method(http.MethodPost, "/ask-stream", askStreamHandler)
				r.Method(http.MethodGet, "/qa", historyHandler)
			})
		})
	})

	return r
}
