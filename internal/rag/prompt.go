package rag

import (
	"fmt"
	"strconv"
	"strings"

	"paperqa/internal/llm"
	"paperqa/internal/route"
)

const (
	// MaxPromptEvidence bounds the number of evidence items serialized into a prompt.
	MaxPromptEvidence = 10
	excerptRunes      = 320

	// NotConfiguredAnswer is the placeholder used when no language model is configured.
	NotConfiguredAnswer = "Language model not configured. Evidence collected below."
	// MissingEvidenceNotice opens every answer produced from insufficient evidence.
	MissingEvidenceNotice = "Missing evidence: the indexed paper and code do not contain enough material to fully answer this question."
)

// SystemPrompt is sent as the system message of every answer request.
const SystemPrompt = "You answer questions about a research paper and its reference implementation " +
	"based on the provided evidence. Be concise. Cite evidence labels like [E1] after the sentences they support " +
	"and mention code by its path and line when you rely on it. " +
	"IMPORTANT: respond in the SAME LANGUAGE as the user's question and keep that language throughout the answer."

// EvidenceLabel returns the citation label of the i-th (0-based) evidence item.
func EvidenceLabel(i int) string {
	return "E" + strconv.Itoa(i+1)
}

// ComposeMessages builds the chat messages for question over set.
func ComposeMessages(question string, set Set, focusPoints []string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: ComposePrompt(question, set, focusPoints)},
	}
}

// ComposePrompt renders the user prompt: question, route, focus points,
// labelled evidence and instructions.
func ComposePrompt(question string, set Set, focusPoints []string) string {
	var b strings.Builder

	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\nRoute: ")
	b.WriteString(string(set.Route.Label))

	var focus []string
	for _, f := range focusPoints {
		if f = strings.TrimSpace(f); f != "" {
			focus = append(focus, f)
		}
	}
	if len(focus) > 0 {
		b.WriteString("\nFocus points:\n")
		for _, f := range focus {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n\nEvidence (cite like [E1], [E2]):\n")
	if len(set.Items) == 0 {
		b.WriteString("(none)\n")
	}
	for i, ev := range set.Items {
		if i >= MaxPromptEvidence {
			break
		}
		b.WriteString(formatEvidence(i, ev))
	}

	b.WriteString("\nInstructions:\n")
	b.WriteString("- Answer using only the evidence above.\n")
	b.WriteString("- Include citations like [E1] after relevant sentences.\n")
	if set.Insufficient {
		b.WriteString("- The evidence is insufficient. Start by stating which evidence is missing, then give a best-effort partial answer clearly marked as inference.\n")
	} else {
		b.WriteString("- If evidence is insufficient, say what is missing.\n")
	}
	if set.Route.Label == route.Fallback {
		b.WriteString("- The question could not be classified. Prefer statements directly supported by the evidence and say when something is uncertain.\n")
	}
	return b.String()
}

func formatEvidence(i int, ev Evidence) string {
	base := ev.Base()
	parts := []string{"kind=" + ev.Kind()}

	switch e := ev.(type) {
	case PaperEvidence:
		parts = append(parts, "paragraph="+strconv.Itoa(e.ParagraphIndex))
		if e.Page > 0 {
			parts = append(parts, "page="+strconv.Itoa(e.Page))
		}
	case CodeEvidence, AlignmentEvidence:
		code, _ := codeOf(e)
		if code.Path != "" {
			parts = append(parts, "path="+code.Path)
		}
		if code.StartLine > 0 {
			parts = append(parts, fmt.Sprintf("line=%d-%d", code.StartLine, code.EndLine))
		}
		if code.SymbolName != "" {
			parts = append(parts, "name="+code.SymbolName)
		}
		if a, ok := e.(AlignmentEvidence); ok {
			parts = append(parts, "aligned_with="+a.ParagraphID)
		}
	}
	parts = append(parts, fmt.Sprintf("score=%.3f", base.Score))

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", EvidenceLabel(i), strings.Join(parts, " "))
	if excerpt := excerptOf(ev.Excerpt()); excerpt != "" {
		b.WriteString("excerpt: ")
		b.WriteString(excerpt)
		b.WriteString("\n")
	}
	return b.String()
}

func excerptOf(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > excerptRunes {
		return string(runes[:excerptRunes])
	}
	return text
}

// PlaceholderAnswer is the deterministic answer produced without a language model.
func PlaceholderAnswer(set Set) string {
	var b strings.Builder
	b.WriteString(NotConfiguredAnswer)
	b.WriteString("\n")
	if len(set.Items) == 0 {
		b.WriteString("\n(no evidence found)\n")
		return b.String()
	}
	for i, ev := range set.Items {
		b.WriteString("\n- [")
		b.WriteString(EvidenceLabel(i))
		b.WriteString("] ")
		switch e := ev.(type) {
		case PaperEvidence:
			fmt.Fprintf(&b, "paper paragraph %d", e.ParagraphIndex)
			if e.Page > 0 {
				fmt.Fprintf(&b, " (page %d)", e.Page)
			}
		default:
			code, _ := codeOf(ev)
			fmt.Fprintf(&b, "%s %s:%d-%d", ev.Kind(), code.Path, code.StartLine, code.EndLine)
			if code.SymbolName != "" {
				b.WriteString(" ")
				b.WriteString(code.SymbolName)
			}
		}
		if excerpt := excerptOf(ev.Excerpt()); excerpt != "" {
			b.WriteString(": ")
			b.WriteString(excerpt)
		}
	}
	b.WriteString("\n")
	return b.String()
}
