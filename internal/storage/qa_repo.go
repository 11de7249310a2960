package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_qa_store.go -package=mocks paperqa/internal/storage QAStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultHistoryLimit caps ListByProject when no limit is given.
const DefaultHistoryLimit = 50

// QAStore defines the interface for QA history operations.
type QAStore interface {
	// AppendQaEntry records a completed answer. ID and CreatedAt are assigned when empty.
	AppendQaEntry(ctx context.Context, entry *QAEntry) error
	// ListByProject returns the newest entries of a project first.
	ListByProject(ctx context.Context, projectID string, limit int) ([]QAEntry, error)
}

// QARepo provides methods for QA history operations.
// It implements the QAStore interface.
type QARepo struct {
	db *sql.DB
}

// NewQARepo creates a new QARepo.
func NewQARepo(db *sql.DB) *QARepo {
	return &QARepo{db: db}
}

// AppendQaEntry inserts entry.
func (r *QARepo) AppendQaEntry(ctx context.Context, entry *QAEntry) error {
	if entry.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	refs := entry.CodeRefs
	if refs == nil {
		refs = []CodeRef{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("failed to encode code refs: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO qa_entries (id, project_id, question, answer, route, provenance, code_refs, paper_count, code_count, insufficient_evidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ProjectID, entry.Question, entry.Answer, entry.Route, entry.Provenance,
		string(refsJSON), entry.PaperCount, entry.CodeCount, entry.InsufficientEvidence,
		entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert qa entry: %w", err)
	}
	return nil
}

// ListByProject returns up to limit entries for projectID, newest first.
// limit <= 0 uses DefaultHistoryLimit.
func (r *QARepo) ListByProject(ctx context.Context, projectID string, limit int) ([]QAEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, question, answer, route, provenance, code_refs, paper_count, code_count, insufficient_evidence, created_at
		 FROM qa_entries WHERE project_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query qa entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := []QAEntry{}
	for rows.Next() {
		var (
			e         QAEntry
			refsJSON  string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Question, &e.Answer, &e.Route, &e.Provenance,
			&refsJSON, &e.PaperCount, &e.CodeCount, &e.InsufficientEvidence, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan qa entry: %w", err)
		}
		if err := json.Unmarshal([]byte(refsJSON), &e.CodeRefs); err != nil {
			return nil, fmt.Errorf("failed to decode code refs: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate qa entries: %w", err)
	}
	return entries, nil
}
