package document

import (
	"strings"
	"testing"

	"github.com/casevine/core/internal/models"
)

func threeSectionTree() []Section {
	return []Section{
		{ID: "a", Title: "Alpha", Content: "Alpha body stays put."},
		{ID: "b", Title: "Beta", Content: "Old beta body."},
		{ID: "c", Title: "Gamma", Content: "Gamma body stays put."},
	}
}

func TestReplaceSection_LeavesOtherSectionsByteIdentical(t *testing.T) {
	tree := FromSections(threeSectionTree())
	before := RenderHTML(tree)

	if ok := ReplaceSection(tree, "b", "Fresh beta content with **emphasis**."); !ok {
		t.Fatalf("section b not found")
	}
	after := RenderHTML(tree)

	markB := `<h2 id="b">`
	markC := `<h2 id="c">`

	beforeB := strings.Index(before, markB)
	afterB := strings.Index(after, markB)
	if before[:beforeB] != after[:afterB] {
		t.Fatalf("content before section b changed:\n%q\n%q", before[:beforeB], after[:afterB])
	}

	beforeC := strings.Index(before, markC)
	afterC := strings.Index(after, markC)
	if before[beforeC:] != after[afterC:] {
		t.Fatalf("content after section b changed:\n%q\n%q", before[beforeC:], after[afterC:])
	}

	if !strings.Contains(after, "<strong>emphasis</strong>") {
		t.Fatalf("replacement content missing: %q", after)
	}
	if strings.Contains(after, "Old beta body.") {
		t.Fatalf("stale content survived: %q", after)
	}
}

func TestReplaceSection_LastSection(t *testing.T) {
	tree := FromSections(threeSectionTree())
	if ok := ReplaceSection(tree, "c", "New tail."); !ok {
		t.Fatalf("section c not found")
	}
	html := RenderHTML(tree)
	if !strings.HasSuffix(html, "<p>New tail.</p>") {
		t.Fatalf("tail not replaced: %q", html)
	}
}

func TestReplaceSection_HeadingSlugFallback(t *testing.T) {
	// Trees submitted by the editor carry no section ids on their
	// headings; the slug of the heading text anchors instead.
	tree := &models.DocNode{Type: models.NodeDocument, Children: []models.DocNode{
		{Type: models.NodeHeading, Level: 2, Children: []models.DocNode{{Type: models.NodeText, Text: "Career Overview"}}},
		{Type: models.NodeParagraph, Children: []models.DocNode{
			{Type: models.NodeText, Text: "renowned", Marks: []models.Mark{models.MarkBold}},
			{Type: models.NodeText, Text: " researcher."},
		}},
		{Type: models.NodeHeading, Level: 2, Children: []models.DocNode{{Type: models.NodeText, Text: "Awards"}}},
		{Type: models.NodeParagraph, Children: []models.DocNode{{Type: models.NodeText, Text: "Old awards body."}}},
	}}

	if ok := ReplaceSection(tree, "awards", "New awards body."); !ok {
		t.Fatalf("heading slug did not anchor")
	}
	html := RenderHTML(tree)
	if !strings.Contains(html, "New awards body.") || strings.Contains(html, "Old awards body.") {
		t.Fatalf("target section not replaced: %q", html)
	}
	if !strings.Contains(html, "<strong>renowned</strong>") {
		t.Fatalf("untouched section lost its marks: %q", html)
	}
}

func TestReplaceSection_UnknownID(t *testing.T) {
	tree := FromSections(threeSectionTree())
	before := RenderHTML(tree)
	if ok := ReplaceSection(tree, "nope", "x"); ok {
		t.Fatalf("expected false for unknown section id")
	}
	if RenderHTML(tree) != before {
		t.Fatalf("tree mutated on failed replace")
	}
}

func TestReplaceMirrorSection(t *testing.T) {
	mirror := "## Alpha\n\none\n\n## Beta\n\ntwo\n\n## Gamma\n\nthree"
	out, ok := ReplaceMirrorSection(mirror, "Beta", "rewritten")
	if !ok {
		t.Fatalf("heading not matched")
	}
	if !strings.Contains(out, "## Beta\n\nrewritten") {
		t.Fatalf("replacement missing: %q", out)
	}
	if !strings.HasPrefix(out, "## Alpha\n\none\n") {
		t.Fatalf("preceding section changed: %q", out)
	}
	if !strings.Contains(out, "## Gamma\n\nthree") {
		t.Fatalf("following section changed: %q", out)
	}
	if strings.Contains(out, "two") {
		t.Fatalf("stale content survived: %q", out)
	}

	if _, ok := ReplaceMirrorSection(mirror, "Delta", "x"); ok {
		t.Fatalf("expected false for unknown heading")
	}
}
