package document

import (
	"strings"

	"github.com/casevine/core/internal/models"
)

// ReplaceSection splices newly generated content into one section of the
// canonical tree. Primary anchor is the stable section id carried by the
// heading node; headings without an id (trees from manual edits) match on
// the slug of their text instead. The heading itself and every other
// section stay untouched. Returns false when no heading matches.
func ReplaceSection(root *models.DocNode, sectionID string, content string) bool {
	if root == nil || sectionID == "" {
		return false
	}

	start := findSectionHeading(root, sectionID)
	if start < 0 {
		return false
	}

	end := len(root.Children)
	for i := start + 1; i < len(root.Children); i++ {
		n := &root.Children[i]
		if n.Type == models.NodeHeading && n.Level == 2 {
			end = i
			break
		}
	}

	body := parseBlocks(content)
	rebuilt := make([]models.DocNode, 0, start+1+len(body)+len(root.Children)-end)
	rebuilt = append(rebuilt, root.Children[:start+1]...)
	rebuilt = append(rebuilt, body...)
	rebuilt = append(rebuilt, root.Children[end:]...)
	root.Children = rebuilt
	return true
}

func findSectionHeading(root *models.DocNode, sectionID string) int {
	for i := range root.Children {
		n := &root.Children[i]
		if n.Type == models.NodeHeading && n.Level == 2 && n.Attr == sectionID {
			return i
		}
	}
	for i := range root.Children {
		n := &root.Children[i]
		if n.Type == models.NodeHeading && n.Level == 2 && n.Attr == "" &&
			Slugify(inlineText(n)) == sectionID {
			return i
		}
	}
	return -1
}

// ReplaceMirrorSection is the compatibility fallback for drafts that only have
// a plain-text mirror: it anchors on the heading text and replaces everything
// up to the next section heading (or end of document). Fragile when headings
// are renamed or duplicated, which is why the tree path is preferred.
func ReplaceMirrorSection(mirror, headingText, content string) (string, bool) {
	lines := strings.Split(mirror, "\n")
	target := strings.TrimSpace(headingText)

	start := -1
	for i, line := range lines {
		if text, ok := mirrorHeadingText(line); ok && text == target {
			start = i
			break
		}
	}
	if start < 0 {
		return mirror, false
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if _, ok := mirrorHeadingText(lines[i]); ok {
			end = i
			break
		}
	}

	var rebuilt []string
	rebuilt = append(rebuilt, lines[:start+1]...)
	rebuilt = append(rebuilt, "")
	rebuilt = append(rebuilt, strings.Split(strings.TrimSpace(content), "\n")...)
	if end < len(lines) {
		rebuilt = append(rebuilt, "")
	}
	rebuilt = append(rebuilt, lines[end:]...)
	return strings.Join(rebuilt, "\n"), true
}
