package corpus

import "fmt"

// Kind identifies which corpus a text unit belongs to.
type Kind string

const (
	// Paper units are paragraphs of the research paper.
	Paper Kind = "paper"
	// Code units are symbol-level chunks of the reference implementation.
	Code Kind = "code"
)

// Valid reports whether k is a known corpus kind.
func (k Kind) Valid() bool {
	return k == Paper || k == Code
}

// PaperMeta locates a paragraph inside the paper.
type PaperMeta struct {
	ParagraphIndex int `json:"paragraph_index"`
	Page           int `json:"page"`
}

// CodeMeta locates a chunk inside the source tree.
type CodeMeta struct {
	Path       string `json:"path"`
	SymbolName string `json:"symbol_name,omitempty"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
}

// Contains reports whether line falls within the chunk's line range.
func (m CodeMeta) Contains(line int) bool {
	return line >= m.StartLine && line <= m.EndLine
}

// TextUnit is one indexed unit of text. Identity is (Corpus, ID).
// Exactly one of Paper or Code is set, matching Corpus.
type TextUnit struct {
	ID     string     `json:"id"`
	Corpus Kind       `json:"corpus"`
	Text   string     `json:"text"`
	Paper  *PaperMeta `json:"paper,omitempty"`
	Code   *CodeMeta  `json:"code,omitempty"`
}

// Key returns the (corpus, id) identity as a single string.
func (u TextUnit) Key() string {
	return string(u.Corpus) + ":" + u.ID
}

// Validate checks that the unit's metadata matches its corpus.
func (u TextUnit) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("text unit has empty id")
	}
	switch u.Corpus {
	case Paper:
		if u.Paper == nil {
			return fmt.Errorf("paper unit %s has no paper metadata", u.ID)
		}
	case Code:
		if u.Code == nil {
			return fmt.Errorf("code unit %s has no code metadata", u.ID)
		}
		if u.Code.Path == "" {
			return fmt.Errorf("code unit %s has empty path", u.ID)
		}
	default:
		return fmt.Errorf("text unit %s has unknown corpus %q", u.ID, u.Corpus)
	}
	return nil
}

// AlignmentEntry links a paper paragraph to a code chunk with a confidence in [0,1].
type AlignmentEntry struct {
	ParagraphID string  `json:"paragraph_id"`
	CodeChunkID string  `json:"code_chunk_id"`
	Confidence  float64 `json:"confidence"`
}

// Manifest describes a project as recorded in project.yaml.
type Manifest struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	PaperURL    string   `yaml:"paper_url"`
	RepoURL     string   `yaml:"repo_url"`
	FocusPoints []string `yaml:"focus_points"`
}

// ParagraphID returns the canonical id for the paragraph at index.
// Ids are zero padded so that lexical order matches paragraph order.
func ParagraphID(index int) string {
	return fmt.Sprintf("p%05d", index)
}

// ChunkID returns the canonical id for the code chunk at index.
func ChunkID(index int) string {
	return fmt.Sprintf("c%05d", index)
}
