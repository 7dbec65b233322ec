package document

import (
	"fmt"
	"strings"

	"github.com/casevine/core/internal/models"
)

// Mirror renders the canonical tree to the plain-text mirror: section headings
// as markdown-style "## Title" lines followed by flattened content. The mirror
// is what manual free-text editing operates on when no tree exists yet, and
// what heading-text section anchoring falls back to.
func Mirror(root *models.DocNode) string {
	if root == nil {
		return ""
	}
	var sb strings.Builder
	for i := range root.Children {
		mirrorBlock(&sb, &root.Children[i])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func mirrorBlock(sb *strings.Builder, n *models.DocNode) {
	switch n.Type {
	case models.NodeHeading:
		level := n.Level
		if level < 1 || level > 6 {
			level = 2
		}
		sb.WriteString(strings.Repeat("#", level))
		sb.WriteString(" ")
		sb.WriteString(inlineText(n))
		sb.WriteString("\n\n")

	case models.NodeParagraph:
		if text := inlineText(n); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}

	case models.NodeBulletList:
		for i := range n.Children {
			sb.WriteString("- ")
			sb.WriteString(inlineText(&n.Children[i]))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")

	case models.NodeOrderedList:
		for i := range n.Children {
			fmt.Fprintf(sb, "%d. %s\n", i+1, inlineText(&n.Children[i]))
		}
		sb.WriteString("\n")

	case models.NodeBlockquote:
		for i := range n.Children {
			var inner strings.Builder
			mirrorBlock(&inner, &n.Children[i])
			for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
				sb.WriteString("> ")
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		}
		sb.WriteString("\n")

	case models.NodeCodeBlock:
		sb.WriteString(strings.TrimRight(n.Text, "\n"))
		sb.WriteString("\n\n")
	}
}

// inlineText flattens a node's inline content to plain text, dropping marks.
func inlineText(n *models.DocNode) string {
	var sb strings.Builder
	collectInlineText(&sb, n)
	return strings.TrimSpace(sb.String())
}

func collectInlineText(sb *strings.Builder, n *models.DocNode) {
	if n.Type == models.NodeText {
		sb.WriteString(n.Text)
	}
	if n.Type == models.NodeHardBreak {
		sb.WriteString("\n")
	}
	for i := range n.Children {
		child := &n.Children[i]
		// Nested blocks inside list items flatten with separating spaces.
		if child.Type == models.NodeParagraph && sb.Len() > 0 {
			sb.WriteString(" ")
		}
		collectInlineText(sb, child)
	}
}

// ExtractSections derives the {id, heading} cache from the canonical tree.
func ExtractSections(root *models.DocNode) []models.DraftSection {
	if root == nil {
		return nil
	}
	var out []models.DraftSection
	for i := range root.Children {
		n := &root.Children[i]
		if n.Type != models.NodeHeading || n.Level != 2 {
			continue
		}
		heading := inlineText(n)
		id := n.Attr
		if id == "" {
			id = Slugify(heading)
		}
		out = append(out, models.DraftSection{ID: id, Heading: heading})
	}
	return out
}

// SectionsFromMirror derives the section cache from a plain-text mirror when
// no tree exists (manual drafts). Section boundaries are "## " heading lines.
func SectionsFromMirror(mirror string) []models.DraftSection {
	var out []models.DraftSection
	for _, line := range strings.Split(mirror, "\n") {
		heading, ok := mirrorHeadingText(line)
		if !ok {
			continue
		}
		out = append(out, models.DraftSection{ID: Slugify(heading), Heading: heading})
	}
	return out
}

// SplitMirror splits a plain-text mirror into full sections, content
// included. Rebuilding a tree from the result loses inline marks; it is
// the fallback path when no id-anchored tree section exists.
func SplitMirror(mirror string) []Section {
	var out []Section
	var current *Section
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(strings.Join(body, "\n"))
		out = append(out, *current)
		current = nil
		body = nil
	}

	for _, line := range strings.Split(mirror, "\n") {
		if heading, ok := mirrorHeadingText(line); ok {
			flush()
			current = &Section{ID: Slugify(heading), Title: heading}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return out
}

func mirrorHeadingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "## ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, "## ")), true
}
