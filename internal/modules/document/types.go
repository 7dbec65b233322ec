package document

import (
	"regexp"
	"strings"
)

// Section is one generated document section: a stable machine id, a display
// title, and body content in the constrained markdown subset (paragraphs,
// ### sub-headings, bold/italic emphasis, bullet lists).
type Section struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a title to a stable machine-readable section id.
func Slugify(s string) string {
	slug := strings.ToLower(strings.TrimSpace(s))
	slug = slugInvalid.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "section"
	}
	return slug
}
