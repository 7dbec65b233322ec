package document

import (
	"strings"

	"github.com/casevine/core/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
).Parser()

// FromSections converts an ordered section list into the canonical tree.
// Each section becomes a level-2 heading node carrying the section id,
// followed by its markdown content parsed into block nodes.
func FromSections(sections []Section) *models.DocNode {
	root := &models.DocNode{Type: models.NodeDocument}
	for _, sec := range sections {
		id := strings.TrimSpace(sec.ID)
		if id == "" {
			id = Slugify(sec.Title)
		}
		heading := models.DocNode{
			Type:     models.NodeHeading,
			Level:    2,
			Attr:     id,
			Children: []models.DocNode{{Type: models.NodeText, Text: sec.Title}},
		}
		root.Children = append(root.Children, heading)
		root.Children = append(root.Children, parseBlocks(sec.Content)...)
	}
	return root
}

// parseBlocks parses a markdown fragment into canonical block nodes.
// Unsupported constructs degrade to their inline text rather than erroring.
func parseBlocks(markdown string) []models.DocNode {
	source := []byte(strings.TrimSpace(markdown))
	if len(source) == 0 {
		return nil
	}
	doc := markdownParser.Parse(text.NewReader(source))

	var blocks []models.DocNode
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		if node, ok := convertBlock(child, source); ok {
			blocks = append(blocks, node)
		}
	}
	return blocks
}

func convertBlock(n ast.Node, source []byte) (models.DocNode, bool) {
	switch b := n.(type) {
	case *ast.Heading:
		level := b.Level
		if level < 3 {
			level = 3 // section bodies may only carry sub-headings
		}
		return models.DocNode{
			Type:     models.NodeHeading,
			Level:    level,
			Children: convertInlineChildren(b, source, nil, ""),
		}, true

	case *ast.Paragraph:
		return models.DocNode{
			Type:     models.NodeParagraph,
			Children: convertInlineChildren(b, source, nil, ""),
		}, true

	case *ast.TextBlock:
		return models.DocNode{
			Type:     models.NodeParagraph,
			Children: convertInlineChildren(b, source, nil, ""),
		}, true

	case *ast.List:
		listType := models.NodeBulletList
		if b.IsOrdered() {
			listType = models.NodeOrderedList
		}
		node := models.DocNode{Type: listType}
		for item := b.FirstChild(); item != nil; item = item.NextSibling() {
			li := models.DocNode{Type: models.NodeListItem}
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				if converted, ok := convertBlock(c, source); ok {
					li.Children = append(li.Children, converted)
				}
			}
			node.Children = append(node.Children, li)
		}
		return node, true

	case *ast.Blockquote:
		node := models.DocNode{Type: models.NodeBlockquote}
		for c := b.FirstChild(); c != nil; c = c.NextSibling() {
			if converted, ok := convertBlock(c, source); ok {
				node.Children = append(node.Children, converted)
			}
		}
		return node, true

	case *ast.FencedCodeBlock:
		return models.DocNode{Type: models.NodeCodeBlock, Text: codeLines(b, source)}, true

	case *ast.CodeBlock:
		return models.DocNode{Type: models.NodeCodeBlock, Text: codeLines(b, source)}, true

	case *ast.ThematicBreak:
		return models.DocNode{}, false
	}

	// Unknown block kinds contribute their inline text as a paragraph.
	if n.HasChildren() {
		children := convertInlineChildren(n, source, nil, "")
		if len(children) > 0 {
			return models.DocNode{Type: models.NodeParagraph, Children: children}, true
		}
	}
	return models.DocNode{}, false
}

func codeLines(n interface{ Lines() *text.Segments }, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}

// convertInlineChildren flattens an inline subtree into marked text runs.
// marks and href carry the formatting accumulated from enclosing nodes.
func convertInlineChildren(parent ast.Node, source []byte, marks []models.Mark, href string) []models.DocNode {
	var out []models.DocNode
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		out = append(out, convertInline(c, source, marks, href)...)
	}
	return out
}

func convertInline(n ast.Node, source []byte, marks []models.Mark, href string) []models.DocNode {
	switch i := n.(type) {
	case *ast.Text:
		content := string(i.Segment.Value(source))
		var out []models.DocNode
		if content != "" {
			out = append(out, textNode(content, marks, href))
		}
		if i.HardLineBreak() {
			out = append(out, models.DocNode{Type: models.NodeHardBreak})
		} else if i.SoftLineBreak() {
			out = append(out, textNode(" ", marks, href))
		}
		return out

	case *ast.String:
		if len(i.Value) == 0 {
			return nil
		}
		return []models.DocNode{textNode(string(i.Value), marks, href)}

	case *ast.Emphasis:
		mark := models.MarkItalic
		if i.Level >= 2 {
			mark = models.MarkBold
		}
		return convertInlineChildren(i, source, appendMark(marks, mark), href)

	case *east.Strikethrough:
		return convertInlineChildren(i, source, appendMark(marks, models.MarkStrike), href)

	case *ast.Link:
		dest := string(i.Destination)
		return convertInlineChildren(i, source, appendMark(marks, models.MarkLink), dest)

	case *ast.AutoLink:
		url := string(i.URL(source))
		return []models.DocNode{textNode(url, appendMark(marks, models.MarkLink), url)}

	case *ast.CodeSpan:
		// The constrained subset has no inline code; keep the text.
		return convertInlineChildren(i, source, marks, href)

	case *ast.RawHTML:
		return nil
	}

	if n.HasChildren() {
		return convertInlineChildren(n, source, marks, href)
	}
	return nil
}

func textNode(content string, marks []models.Mark, href string) models.DocNode {
	node := models.DocNode{Type: models.NodeText, Text: content}
	if len(marks) > 0 {
		node.Marks = append(node.Marks, marks...)
	}
	if href != "" && hasMark(marks, models.MarkLink) {
		node.Href = href
	}
	return node
}

func appendMark(marks []models.Mark, mark models.Mark) []models.Mark {
	if hasMark(marks, mark) {
		return marks
	}
	out := make([]models.Mark, 0, len(marks)+1)
	out = append(out, marks...)
	return append(out, mark)
}

func hasMark(marks []models.Mark, mark models.Mark) bool {
	for _, m := range marks {
		if m == mark {
			return true
		}
	}
	return false
}
