package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"paperqa/internal/contextutil"
)

var (
	// ErrProjectNotFound is returned when a project directory does not exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrInvalidProjectID is returned for ids that cannot name a directory.
	ErrInvalidProjectID = errors.New("invalid project id")
)

const (
	manifestFile  = "project.yaml"
	paperDir      = "paper"
	parsedFile    = "parsed.json"
	codeDir       = "code"
	chunksFile    = "chunks.json"
	alignmentDir  = "alignment"
	alignmentFile = "alignment.json"
)

// Source is the ingestion collaborator: it yields already-parsed corpora for a project.
type Source interface {
	// ListProjects returns the ids of all projects with ingestion output.
	ListProjects(ctx context.Context) ([]string, error)
	// Manifest returns the project description.
	Manifest(ctx context.Context, projectID string) (Manifest, error)
	// GetParagraphs returns the paper paragraphs in document order.
	GetParagraphs(ctx context.Context, projectID string) ([]TextUnit, error)
	// GetCodeChunks returns the code symbol chunks.
	GetCodeChunks(ctx context.Context, projectID string) ([]TextUnit, error)
	// GetAlignment returns the paragraph to code chunk links.
	GetAlignment(ctx context.Context, projectID string) ([]AlignmentEntry, error)
}

// FileStore reads ingestion output from a directory tree:
//
//	<root>/<project>/project.yaml
//	<root>/<project>/paper/parsed.json   (or paper/*.md)
//	<root>/<project>/code/chunks.json
//	<root>/<project>/alignment/alignment.json
//
// Missing corpus files yield empty results rather than errors.
type FileStore struct {
	root     string
	splitter *MarkdownSplitter
}

// NewFileStore creates a FileStore rooted at root.
func NewFileStore(root string) *FileStore {
	return &FileStore{
		root:     root,
		splitter: NewMarkdownSplitter(),
	}
}

// Root returns the projects directory.
func (s *FileStore) Root() string {
	return s.root
}

// ProjectDir returns the directory holding projectID's ingestion output.
func (s *FileStore) ProjectDir(projectID string) (string, error) {
	if projectID == "" || projectID == "." || projectID == ".." ||
		strings.ContainsAny(projectID, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidProjectID, projectID)
	}
	dir := filepath.Join(s.root, projectID)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		return "", fmt.Errorf("failed to stat project directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return dir, nil
}

// ListProjects returns the ids of all project directories, sorted.
func (s *FileStore) ListProjects(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read projects directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Manifest reads project.yaml. A missing manifest yields a manifest named after the id.
func (s *FileStore) Manifest(ctx context.Context, projectID string) (Manifest, error) {
	dir, err := s.ProjectDir(projectID)
	if err != nil {
		return Manifest{}, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{ID: projectID, Name: projectID}, nil
		}
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest: %w", err)
	}
	m.ID = projectID
	if m.Name == "" {
		m.Name = projectID
	}
	return m, nil
}

type parsedPaper struct {
	Paragraphs []struct {
		Text string  `json:"text"`
		Page flexInt `json:"page"`
	} `json:"paragraphs"`
}

// GetParagraphs loads paper/parsed.json, falling back to markdown files under paper/.
func (s *FileStore) GetParagraphs(ctx context.Context, projectID string) ([]TextUnit, error) {
	logger := contextutil.LoggerFromContext(ctx)

	dir, err := s.ProjectDir(projectID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, paperDir, parsedFile))
	if err == nil {
		var parsed parsedPaper
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", parsedFile, err)
		}
		units := make([]TextUnit, 0, len(parsed.Paragraphs))
		for i, p := range parsed.Paragraphs {
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			units = append(units, TextUnit{
				ID:     ParagraphID(i),
				Corpus: Paper,
				Text:   p.Text,
				Paper:  &PaperMeta{ParagraphIndex: i, Page: int(p.Page)},
			})
		}
		return units, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", parsedFile, err)
	}

	files, err := filepath.Glob(filepath.Join(dir, paperDir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to list paper markdown: %w", err)
	}
	sort.Strings(files)

	var units []TextUnit
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(file), err)
		}
		for _, text := range s.splitter.Split(content) {
			idx := len(units)
			units = append(units, TextUnit{
				ID:     ParagraphID(idx),
				Corpus: Paper,
				Text:   text,
				Paper:  &PaperMeta{ParagraphIndex: idx},
			})
		}
	}
	if len(units) == 0 {
		logger.DebugContext(ctx, "no paper paragraphs found", "project_id", projectID)
	}
	return units, nil
}

type chunkFile struct {
	Chunks []struct {
		ID         string  `json:"id"`
		Path       string  `json:"path"`
		SymbolName string  `json:"symbol_name"`
		StartLine  flexInt `json:"start_line"`
		EndLine    flexInt `json:"end_line"`
		Text       string  `json:"text"`
	} `json:"chunks"`
}

// GetCodeChunks loads code/chunks.json. Chunks without an id get a positional one.
func (s *FileStore) GetCodeChunks(ctx context.Context, projectID string) ([]TextUnit, error) {
	dir, err := s.ProjectDir(projectID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, codeDir, chunksFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", chunksFile, err)
	}

	var parsed chunkFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", chunksFile, err)
	}

	units := make([]TextUnit, 0, len(parsed.Chunks))
	seen := make(map[string]bool, len(parsed.Chunks))
	for i, c := range parsed.Chunks {
		id := c.ID
		if id == "" {
			id = ChunkID(i)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate code chunk id %q", id)
		}
		seen[id] = true

		end := int(c.EndLine)
		if end < int(c.StartLine) {
			end = int(c.StartLine)
		}
		unit := TextUnit{
			ID:     id,
			Corpus: Code,
			Text:   c.Text,
			Code: &CodeMeta{
				Path:       filepath.ToSlash(c.Path),
				SymbolName: c.SymbolName,
				StartLine:  int(c.StartLine),
				EndLine:    end,
			},
		}
		if err := unit.Validate(); err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}

type alignmentDoc struct {
	Entries []struct {
		ParagraphID string    `json:"paragraph_id"`
		CodeChunkID string    `json:"code_chunk_id"`
		Confidence  flexFloat `json:"confidence"`
	} `json:"entries"`
	// Results is the paragraph-level format written by older alignment runs.
	Results []struct {
		ParagraphIndex flexInt   `json:"paragraph_index"`
		Confidence     flexFloat `json:"confidence"`
		Matches        []struct {
			Path string  `json:"path"`
			Line flexInt `json:"line"`
		} `json:"matches"`
	} `json:"results"`
}

// GetAlignment loads alignment/alignment.json. Entries in the paragraph-level
// results format are resolved to code chunks by path and line.
func (s *FileStore) GetAlignment(ctx context.Context, projectID string) ([]AlignmentEntry, error) {
	logger := contextutil.LoggerFromContext(ctx)

	dir, err := s.ProjectDir(projectID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, alignmentDir, alignmentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", alignmentFile, err)
	}

	var doc alignmentDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", alignmentFile, err)
	}

	entries := make([]AlignmentEntry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if e.ParagraphID == "" || e.CodeChunkID == "" {
			continue
		}
		entries = append(entries, AlignmentEntry{
			ParagraphID: e.ParagraphID,
			CodeChunkID: e.CodeChunkID,
			Confidence:  clamp01(float64(e.Confidence)),
		})
	}

	if len(doc.Results) == 0 {
		return entries, nil
	}

	chunks, err := s.GetCodeChunks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	resolved := ResolveLegacyAlignment(chunks, func(yield func(paragraphIndex int, confidence float64, path string, line int)) {
		for _, r := range doc.Results {
			for _, m := range r.Matches {
				yield(int(r.ParagraphIndex), float64(r.Confidence), m.Path, int(m.Line))
			}
		}
	})
	logger.DebugContext(ctx, "resolved paragraph-level alignment",
		"project_id", projectID,
		"results", len(doc.Results),
		"entries", len(resolved),
	)
	return append(entries, resolved...), nil
}

// ResolveLegacyAlignment maps (paragraph, path, line) matches to chunk-level entries.
// A match resolves to the chunk at path whose range contains line, or to the first
// chunk of the file when line is zero. Unresolvable matches are dropped.
func ResolveLegacyAlignment(chunks []TextUnit, matches func(yield func(paragraphIndex int, confidence float64, path string, line int))) []AlignmentEntry {
	byPath := make(map[string][]TextUnit)
	for _, c := range chunks {
		if c.Code == nil {
			continue
		}
		byPath[c.Code.Path] = append(byPath[c.Code.Path], c)
	}
	for path := range byPath {
		sort.Slice(byPath[path], func(i, j int) bool {
			return byPath[path][i].Code.StartLine < byPath[path][j].Code.StartLine
		})
	}

	seen := make(map[string]bool)
	var out []AlignmentEntry
	matches(func(paragraphIndex int, confidence float64, path string, line int) {
		candidates := byPath[filepath.ToSlash(path)]
		if len(candidates) == 0 {
			return
		}
		var chunk *TextUnit
		if line <= 0 {
			chunk = &candidates[0]
		} else {
			for i := range candidates {
				if candidates[i].Code.Contains(line) {
					chunk = &candidates[i]
					break
				}
			}
		}
		if chunk == nil {
			return
		}
		key := ParagraphID(paragraphIndex) + "|" + chunk.ID
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, AlignmentEntry{
			ParagraphID: ParagraphID(paragraphIndex),
			CodeChunkID: chunk.ID,
			Confidence:  clamp01(confidence),
		})
	})
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// flexInt accepts JSON numbers and numeric strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", s, err)
	}
	*f = flexInt(int(v))
	return nil
}

// flexFloat accepts JSON numbers and numeric strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}
