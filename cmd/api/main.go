package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paperqa/internal/config"
	"paperqa/internal/corpus"
	"paperqa/internal/http"
	"paperqa/internal/llm"
	"paperqa/internal/project"
	"paperqa/internal/rag"
	"paperqa/internal/route"
	"paperqa/internal/storage"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions about research papers and their reference implementations,
// routing each question to the paper, the code or both and citing the evidence used.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: PaperQA API
//   description: |
//     Question answering over a paper and its code. Answers are streamed as Server-Sent
//     Events or returned as one JSON payload, with cited code locations and the
//     paper/code evidence mix.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	projectRepo := storage.NewProjectRepo(db)
	qaRepo := storage.NewQARepo(db)

	source := corpus.NewFileStore(cfg.ProjectsDir)
	registry := project.NewRegistry(project.NewBuilder(source), recordSnapshot(projectRepo))

	if err := registry.LoadAll(ctx); err != nil {
		slog.Error("Some projects failed to load", "error", err)
	}
	slog.Info("Projects loaded", "dir", cfg.ProjectsDir, "count", registry.Len())

	if cfg.WatchProjects {
		watcher := project.NewWatcher(cfg.ProjectsDir,
			project.ReloadOnChange(ctx, registry),
			func(projectID string) { registry.Remove(ctx, projectID) },
		)
		if err := watcher.Start(ctx); err != nil {
			slog.Error("Project watcher failed to start; changes require a manual reload", "error", err)
		} else {
			defer watcher.Stop()
			slog.Info("Watching projects for changes", "dir", cfg.ProjectsDir)
		}
	}

	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName,
		llm.WithTemperature(cfg.LLMTemperature),
		llm.WithRateLimit(cfg.LLMRequestsPerSecond),
	)
	if !llmClient.Configured() {
		slog.Warn("LLM_BASE_URL not set; answers will list the collected evidence only")
	}

	routerOpts := []route.Option{route.WithTimeout(cfg.RouterClassifierTimeout)}
	if cfg.RouterClassifier && llmClient.Configured() {
		routerOpts = append(routerOpts, route.WithClassifier(llmClient))
	}

	assembler := rag.NewAssembler(rag.AssemblerConfig{
		TopK:                   cfg.RetrievalTopK,
		LexicalWeight:          cfg.FusionLexicalWeight,
		MinRelevance:           cfg.MinRelevance,
		HybridCap:              cfg.HybridCorpusCap,
		SingleCap:              cfg.SingleCorpusCap,
		AlignmentMinConfidence: cfg.AlignmentMinConfidence,
		AlignmentRatio:         cfg.AlignmentRatio,
	})

	engine := rag.NewEngine(registry, route.New(routerOpts...), assembler, llmClient,
		rag.WithHistory(qaRepo),
		rag.WithChatParams(llm.ChatParams{
			Model:       cfg.LLMModelName,
			Temperature: llm.Temp(cfg.LLMTemperature),
		}),
		rag.WithStateHook(logState),
	)
	slog.Info("Answer engine initialized", "classifier", cfg.RouterClassifier && llmClient.Configured())

	router := http.NewRouter(&http.Deps{
		Engine:   engine,
		Projects: registry,
		Records:  projectRepo,
		History:  qaRepo,
		DB:       db,
		Model:    llmClient,
	})

	// No write timeout: answers are streamed for as long as the model generates.
	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown failed", "error", err)
		}
	}
}

// recordSnapshot persists project metadata whenever a snapshot is published.
func recordSnapshot(repo storage.ProjectStore) project.PublishHook {
	return func(ctx context.Context, snap *project.Snapshot) {
		stats := snap.Stats()
		rec := &storage.ProjectRecord{
			ID:             snap.ProjectID,
			Name:           snap.Manifest.Name,
			PaperURL:       snap.Manifest.PaperURL,
			RepoURL:        snap.Manifest.RepoURL,
			FocusPoints:    snap.Manifest.FocusPoints,
			Paragraphs:     stats.Paragraphs,
			CodeChunks:     stats.CodeChunks,
			AlignmentLinks: stats.AlignmentLinks,
			LastBuiltAt:    snap.BuiltAt,
		}
		if err := repo.Upsert(context.WithoutCancel(ctx), rec); err != nil {
			slog.ErrorContext(ctx, "Failed to record project", "project_id", snap.ProjectID, "error", err)
		}
	}
}

func logState(ctx context.Context, projectID string, state rag.State) {
	if state.Terminal() {
		slog.DebugContext(ctx, "answer request finished", "project_id", projectID, "state", state.String())
	}
}
