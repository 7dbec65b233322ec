package models

// NodeType enumerates canonical document tree node kinds.
type NodeType string

const (
	NodeDocument    NodeType = "document"
	NodeHeading     NodeType = "heading"
	NodeParagraph   NodeType = "paragraph"
	NodeBulletList  NodeType = "bulletList"
	NodeOrderedList NodeType = "orderedList"
	NodeListItem    NodeType = "listItem"
	NodeBlockquote  NodeType = "blockquote"
	NodeCodeBlock   NodeType = "codeBlock"
	NodeHardBreak   NodeType = "hardBreak"
	NodeText        NodeType = "text"
)

// Mark is an inline formatting flag on a text node.
type Mark string

const (
	MarkBold      Mark = "bold"
	MarkItalic    Mark = "italic"
	MarkUnderline Mark = "underline"
	MarkStrike    Mark = "strike"
	MarkLink      Mark = "link"
)

// DocNode is one node of the canonical section tree. The tree is the single
// source of truth for a generated document's structure; the markup and the
// plain-text mirror are derived from it.
type DocNode struct {
	Type     NodeType  `json:"type"`
	Level    int       `json:"level,omitempty"`   // heading only
	Attr     string    `json:"attr,omitempty"`    // heading: stable section id
	Text     string    `json:"text,omitempty"`    // text / codeBlock only
	Marks    []Mark    `json:"marks,omitempty"`   // text only
	Href     string    `json:"href,omitempty"`    // text with link mark
	Children []DocNode `json:"children,omitempty"`
}

// DraftSection is the cached {id, heading} pair extracted from the tree.
// Always derivable; regenerated whenever tree or mirror changes.
type DraftSection struct {
	ID      string `json:"id"`
	Heading string `json:"heading"`
}
