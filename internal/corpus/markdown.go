package corpus

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const minParagraphRunes = 20

// MarkdownSplitter splits a paper rendered as markdown into paragraphs using goldmark AST parsing.
type MarkdownSplitter struct {
	parser goldmark.Markdown
}

// NewMarkdownSplitter creates a new splitter.
func NewMarkdownSplitter() *MarkdownSplitter {
	return &MarkdownSplitter{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// Split returns the paragraph texts of content in document order.
// Headings are not emitted on their own; the nearest heading is prefixed to the
// paragraphs below it so that section names stay searchable. Fragments shorter
// than minParagraphRunes are merged into the following paragraph.
func (s *MarkdownSplitter) Split(content []byte) []string {
	if len(content) == 0 {
		return nil
	}

	doc := s.parser.Parser().Parse(text.NewReader(content))

	var paragraphs []string
	var heading string
	var carry string

	flush := func(body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		if carry != "" {
			body = carry + " " + body
			carry = ""
		}
		if len([]rune(body)) < minParagraphRunes {
			carry = body
			return
		}
		if heading != "" {
			body = heading + ": " + body
		}
		paragraphs = append(paragraphs, body)
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Heading:
			heading = nodeText(v, content)
		case *ast.Paragraph, *ast.Blockquote:
			flush(nodeText(v, content))
		case *ast.List:
			for item := v.FirstChild(); item != nil; item = item.NextSibling() {
				flush(nodeText(item, content))
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			flush(blockLines(v, content))
		default:
			if v.Kind().String() == "Table" {
				flush(nodeText(v, content))
			}
		}
	}
	if carry != "" {
		if heading != "" {
			carry = heading + ": " + carry
		}
		paragraphs = append(paragraphs, carry)
	}

	return paragraphs
}

// nodeText collects the inline text below n, joining soft line breaks with spaces.
func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		}
		if node.Kind().String() == "TableCell" {
			b.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(b.String()), " ")
}

func blockLines(n ast.Node, content []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(content))
	}
	return strings.TrimSpace(b.String())
}
