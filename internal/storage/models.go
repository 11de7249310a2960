package storage

import "time"

// ProjectRecord is the persisted metadata of a project and its last published snapshot.
type ProjectRecord struct {
	ID             string
	Name           string
	PaperURL       string
	RepoURL        string
	FocusPoints    []string
	Paragraphs     int
	CodeChunks     int
	AlignmentLinks int
	LastBuiltAt    time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CodeRef is a code location cited by an answer.
type CodeRef struct {
	Path       string `json:"path"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	SymbolName string `json:"symbol_name,omitempty"`
	Line       int    `json:"line"`
}

// QAEntry is one completed question and answer.
type QAEntry struct {
	ID                   string    `json:"id"`
	ProjectID            string    `json:"project_id"`
	Question             string    `json:"question"`
	Answer               string    `json:"answer"`
	Route                string    `json:"route"`
	Provenance           string    `json:"provenance"`
	CodeRefs             []CodeRef `json:"code_refs"`
	PaperCount           int       `json:"paper_count"`
	CodeCount            int       `json:"code_count"`
	InsufficientEvidence bool      `json:"insufficient_evidence"`
	CreatedAt            time.Time `json:"created_at"`
}
