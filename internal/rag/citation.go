package rag

import (
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"paperqa/internal/storage"
)

// CodeRef is a cited code location.
type CodeRef = storage.CodeRef

var (
	labelGroupPattern = regexp.MustCompile(`\[\s*(E\d+(?:\s*[,;]\s*E\d+)*)\s*\]`)
	labelPattern      = regexp.MustCompile(`E(\d+)`)
	pathLinePattern   = regexp.MustCompile(`([A-Za-z0-9_./\\-]+\.[A-Za-z0-9]+)(?::|#L|,? line )(\d+)(?:-L?(\d+))?`)
	pathTokenPattern  = regexp.MustCompile(`[A-Za-z0-9_./\\-]+\.[A-Za-z0-9]+`)
)

var markdown = goldmark.New()

// ExtractCodeRefs returns the code locations of the evidence items answer cites.
// An item is cited when the answer uses its [E#] label, names its path as a whole
// token, names a path:line inside its range, or names its symbol in a code span.
// A path:line outside an item's range suppresses bare mentions of that path.
// Results follow evidence order and are unique per (path, start_line, end_line).
func ExtractCodeRefs(answer string, set Set) []CodeRef {
	if strings.TrimSpace(answer) == "" || len(set.Items) == 0 {
		return nil
	}

	type codeItem struct {
		pos  int
		code CodeEvidence
	}
	var codes []codeItem
	for i, ev := range set.Items {
		if code, ok := codeOf(ev); ok {
			codes = append(codes, codeItem{pos: i, code: code})
		}
	}
	if len(codes) == 0 {
		return nil
	}

	cited := make(map[int]int) // evidence position -> cited line, 0 if none
	cite := func(pos, line int) {
		if prev, ok := cited[pos]; !ok || (prev == 0 && line > 0) {
			cited[pos] = line
		}
	}

	for _, group := range labelGroupPattern.FindAllStringSubmatch(answer, -1) {
		for _, m := range labelPattern.FindAllStringSubmatch(group[1], -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 || n > len(set.Items) || n > MaxPromptEvidence {
				continue
			}
			if _, ok := codeOf(set.Items[n-1]); ok {
				cite(n-1, 0)
			}
		}
	}

	var lineMentions [][]int
	outOfRange := make(map[int]bool)
	for _, loc := range pathLinePattern.FindAllStringSubmatchIndex(answer, -1) {
		lineMentions = append(lineMentions, loc[:2])
		line, err := strconv.Atoi(answer[loc[4]:loc[5]])
		if err != nil {
			continue
		}
		mention := answer[loc[2]:loc[3]]
		for _, c := range codes {
			if !samePath(mention, c.code.Path) {
				continue
			}
			if c.code.StartLine == 0 || (line >= c.code.StartLine && line <= c.code.EndLine) {
				cite(c.pos, line)
			} else {
				outOfRange[c.pos] = true
			}
		}
	}

	for _, loc := range pathTokenPattern.FindAllStringIndex(answer, -1) {
		if within(loc, lineMentions) {
			continue
		}
		mention := answer[loc[0]:loc[1]]
		for _, c := range codes {
			if !outOfRange[c.pos] && samePath(mention, c.code.Path) {
				cite(c.pos, 0)
			}
		}
	}

	for _, span := range codeSpans(answer) {
		name := strings.TrimSuffix(strings.TrimSpace(span), "()")
		if name == "" {
			continue
		}
		for _, c := range codes {
			if symbolMatches(name, c.code.SymbolName) || samePath(name, c.code.Path) {
				cite(c.pos, 0)
			}
		}
	}

	positions := make([]int, 0, len(cited))
	for pos := range cited {
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	seen := make(map[string]bool)
	refs := make([]CodeRef, 0, len(positions))
	for _, pos := range positions {
		code, _ := codeOf(set.Items[pos])
		key := code.Path + ":" + strconv.Itoa(code.StartLine) + "-" + strconv.Itoa(code.EndLine)
		if seen[key] {
			continue
		}
		seen[key] = true
		ref := code.Ref()
		if line := cited[pos]; line > 0 {
			ref.Line = line
		}
		refs = append(refs, ref)
	}
	return refs
}

// codeSpans returns the contents of inline code spans in a markdown answer.
func codeSpans(answer string) []string {
	src := []byte(answer)
	doc := markdown.Parser().Parse(text.NewReader(src))

	var spans []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		span, ok := n.(*ast.CodeSpan)
		if !ok {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		for c := span.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				b.Write(t.Segment.Value(src))
			}
		}
		spans = append(spans, b.String())
		return ast.WalkSkipChildren, nil
	})
	return spans
}

// within reports whether loc lies inside one of spans.
func within(loc []int, spans [][]int) bool {
	for _, sp := range spans {
		if loc[0] >= sp[0] && loc[1] <= sp[1] {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "./")
}

// samePath reports whether mention refers to full, allowing the mention to be
// a trailing segment of the path such as its file name.
func samePath(mention, full string) bool {
	m, f := normalizePath(mention), normalizePath(full)
	if m == "" || f == "" {
		return false
	}
	if m == f {
		return true
	}
	if strings.HasSuffix(f, "/"+m) {
		return true
	}
	return path.Base(m) == path.Base(f) && strings.HasSuffix(m, "/"+f)
}

// symbolMatches accepts the bare symbol or a qualified name ending in it.
func symbolMatches(name, symbol string) bool {
	if symbol == "" {
		return false
	}
	return name == symbol || strings.HasSuffix(name, "."+symbol)
}
