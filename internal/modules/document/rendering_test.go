package document

import (
	"strings"
	"testing"

	"github.com/casevine/core/internal/models"
)

func sampleSections() []Section {
	return []Section{
		{ID: "introduction", Title: "Introduction", Content: "Alice is a **renowned** researcher.\n\n- First point\n- Second point"},
		{ID: "awards", Title: "Awards", Content: "### Background\n\nShe won the *NeurIPS* best paper award."},
	}
}

func TestRenderHTML_Idempotent(t *testing.T) {
	tree := FromSections(sampleSections())
	first := RenderHTML(tree)
	second := RenderHTML(tree)
	if first != second {
		t.Fatalf("rendering the same tree twice differs:\n%q\n%q", first, second)
	}
	if first == "" {
		t.Fatalf("expected non-empty markup")
	}
}

func TestRenderHTML_SectionHeadingCarriesID(t *testing.T) {
	tree := FromSections(sampleSections())
	html := RenderHTML(tree)
	if !strings.Contains(html, `<h2 id="introduction">Introduction</h2>`) {
		t.Fatalf("missing id-carrying section heading in %q", html)
	}
	if !strings.Contains(html, `<strong>renowned</strong>`) {
		t.Fatalf("missing bold run in %q", html)
	}
	if !strings.Contains(html, `<h3>Background</h3>`) {
		t.Fatalf("missing sub-heading in %q", html)
	}
	if !strings.Contains(html, `<em>NeurIPS</em>`) {
		t.Fatalf("missing italic run in %q", html)
	}
}

func TestRenderHTML_EscapesBeforeMarks(t *testing.T) {
	node := &models.DocNode{
		Type: models.NodeDocument,
		Children: []models.DocNode{{
			Type: models.NodeParagraph,
			Children: []models.DocNode{{
				Type:  models.NodeText,
				Text:  "score < 5 & rising",
				Marks: []models.Mark{models.MarkBold},
			}},
		}},
	}
	got := RenderHTML(node)
	want := "<p><strong>score &lt; 5 &amp; rising</strong></p>"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRenderHTML_MarkOrderDeterministic(t *testing.T) {
	// Marks arrive in arbitrary order; application order is fixed
	// bold -> italic -> underline -> strike -> link.
	node := &models.DocNode{
		Type: models.NodeDocument,
		Children: []models.DocNode{{
			Type: models.NodeParagraph,
			Children: []models.DocNode{{
				Type: models.NodeText,
				Text: "x",
				Marks: []models.Mark{
					models.MarkLink, models.MarkStrike, models.MarkUnderline,
					models.MarkItalic, models.MarkBold,
				},
				Href: "https://example.com",
			}},
		}},
	}
	got := RenderHTML(node)
	want := `<p><a href="https://example.com"><s><u><em><strong>x</strong></em></u></s></a></p>`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRenderHTML_MalformedNodesSilent(t *testing.T) {
	node := &models.DocNode{
		Type: models.NodeDocument,
		Children: []models.DocNode{
			{Type: "mystery"},
			{Type: models.NodeText}, // empty text
			{Type: models.NodeParagraph, Children: []models.DocNode{{Type: models.NodeText, Text: "ok"}}},
		},
	}
	got := RenderHTML(node)
	if got != "<p>ok</p>" {
		t.Fatalf("malformed nodes should contribute nothing, got %q", got)
	}
	if RenderHTML(nil) != "" {
		t.Fatalf("nil tree should render empty")
	}
}
