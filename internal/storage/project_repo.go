package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_project_store.go -package=mocks paperqa/internal/storage ProjectStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
)

// ProjectStore defines the interface for project record operations.
type ProjectStore interface {
	// Upsert inserts a project or updates its metadata and snapshot counts.
	Upsert(ctx context.Context, project *ProjectRecord) error
	// GetByID returns the project with id, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*ProjectRecord, error)
	// List returns all projects ordered by id.
	List(ctx context.Context) ([]ProjectRecord, error)
}

// ProjectRepo provides methods for project operations.
// It implements the ProjectStore interface.
type ProjectRepo struct {
	db *sql.DB
}

// NewProjectRepo creates a new ProjectRepo.
func NewProjectRepo(db *sql.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

// Upsert inserts a new project or updates an existing one. CreatedAt is preserved
// for existing rows.
func (r *ProjectRepo) Upsert(ctx context.Context, project *ProjectRecord) error {
	if project.ID == "" {
		return fmt.Errorf("project id is required")
	}
	focus := project.FocusPoints
	if focus == nil {
		focus = []string{}
	}
	focusJSON, err := json.Marshal(focus)
	if err != nil {
		return fmt.Errorf("failed to encode focus points: %w", err)
	}

	now := time.Now().UTC()
	var lastBuilt sql.NullString
	if !project.LastBuiltAt.IsZero() {
		lastBuilt = sql.NullString{String: project.LastBuiltAt.UTC().Format(timeLayout), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, paper_url, repo_url, focus_points, paragraphs, code_chunks, alignment_links, last_built_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 name = excluded.name, paper_url = excluded.paper_url, repo_url = excluded.repo_url,
		 focus_points = excluded.focus_points, paragraphs = excluded.paragraphs,
		 code_chunks = excluded.code_chunks, alignment_links = excluded.alignment_links,
		 last_built_at = excluded.last_built_at, updated_at = excluded.updated_at`,
		project.ID, project.Name, project.PaperURL, project.RepoURL, string(focusJSON),
		project.Paragraphs, project.CodeChunks, project.AlignmentLinks, lastBuilt,
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	return nil
}

const projectColumns = `id, name, COALESCE(paper_url, ''), COALESCE(repo_url, ''), focus_points, paragraphs, code_chunks, alignment_links, last_built_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*ProjectRecord, error) {
	var (
		p                    ProjectRecord
		focusJSON            string
		lastBuilt            sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.PaperURL, &p.RepoURL, &focusJSON,
		&p.Paragraphs, &p.CodeChunks, &p.AlignmentLinks, &lastBuilt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(focusJSON), &p.FocusPoints); err != nil {
		return nil, fmt.Errorf("failed to decode focus points: %w", err)
	}
	var err error
	if lastBuilt.Valid && lastBuilt.String != "" {
		if p.LastBuiltAt, err = parseTime(lastBuilt.String); err != nil {
			return nil, err
		}
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID returns the project with id. Returns nil and ErrNotFound if not found.
func (r *ProjectRepo) GetByID(ctx context.Context, id string) (*ProjectRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}
	return p, nil
}

// List returns all projects ordered by id.
func (r *ProjectRepo) List(ctx context.Context) ([]ProjectRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var projects []ProjectRecord
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return projects, nil
}
