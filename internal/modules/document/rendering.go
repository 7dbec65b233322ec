package document

import (
	"fmt"
	"strings"

	"github.com/casevine/core/internal/models"
)

// markOrder fixes the application order of inline marks. Bold is applied
// innermost, link outermost, so the rendered markup is deterministic no
// matter how the marks array happens to be ordered.
var markOrder = []models.Mark{
	models.MarkBold,
	models.MarkItalic,
	models.MarkUnderline,
	models.MarkStrike,
	models.MarkLink,
}

var markTags = map[models.Mark]string{
	models.MarkBold:      "strong",
	models.MarkItalic:    "em",
	models.MarkUnderline: "u",
	models.MarkStrike:    "s",
}

// RenderHTML renders the canonical tree to display markup. Rendering the same
// tree twice yields byte-identical output. Empty or malformed nodes contribute
// nothing; the renderer never fails on a document it produced itself, nor on
// partially-specified content from manual edits.
func RenderHTML(root *models.DocNode) string {
	if root == nil {
		return ""
	}
	var sb strings.Builder
	renderNode(&sb, root)
	return sb.String()
}

func renderNode(sb *strings.Builder, n *models.DocNode) {
	switch n.Type {
	case models.NodeDocument:
		renderChildren(sb, n)

	case models.NodeHeading:
		level := n.Level
		if level < 1 || level > 6 {
			level = 2
		}
		if n.Attr != "" {
			fmt.Fprintf(sb, `<h%d id="%s">`, level, escapeText(n.Attr))
		} else {
			fmt.Fprintf(sb, "<h%d>", level)
		}
		renderChildren(sb, n)
		fmt.Fprintf(sb, "</h%d>", level)

	case models.NodeParagraph:
		sb.WriteString("<p>")
		renderChildren(sb, n)
		sb.WriteString("</p>")

	case models.NodeBulletList:
		sb.WriteString("<ul>")
		renderChildren(sb, n)
		sb.WriteString("</ul>")

	case models.NodeOrderedList:
		sb.WriteString("<ol>")
		renderChildren(sb, n)
		sb.WriteString("</ol>")

	case models.NodeListItem:
		sb.WriteString("<li>")
		renderChildren(sb, n)
		sb.WriteString("</li>")

	case models.NodeBlockquote:
		sb.WriteString("<blockquote>")
		renderChildren(sb, n)
		sb.WriteString("</blockquote>")

	case models.NodeCodeBlock:
		sb.WriteString("<pre><code>")
		sb.WriteString(escapeText(n.Text))
		sb.WriteString("</code></pre>")

	case models.NodeHardBreak:
		sb.WriteString("<br/>")

	case models.NodeText:
		sb.WriteString(renderText(n))
	}
	// Unknown node types are silently skipped.
}

func renderChildren(sb *strings.Builder, n *models.DocNode) {
	for i := range n.Children {
		renderNode(sb, &n.Children[i])
	}
}

func renderText(n *models.DocNode) string {
	out := escapeText(n.Text)
	if out == "" {
		return ""
	}
	for _, mark := range markOrder {
		if !hasMark(n.Marks, mark) {
			continue
		}
		if mark == models.MarkLink {
			out = fmt.Sprintf(`<a href="%s">%s</a>`, escapeText(n.Href), out)
			continue
		}
		tag := markTags[mark]
		out = "<" + tag + ">" + out + "</" + tag + ">"
	}
	return out
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeText(s string) string {
	return textEscaper.Replace(s)
}
