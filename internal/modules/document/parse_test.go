package document

import (
	"strings"
	"testing"

	"github.com/casevine/core/internal/models"
)

func TestFromSections_BuildsHeadingAndBlocks(t *testing.T) {
	tree := FromSections(sampleSections())
	if tree.Type != models.NodeDocument {
		t.Fatalf("root must be a document node, got %q", tree.Type)
	}

	first := tree.Children[0]
	if first.Type != models.NodeHeading || first.Level != 2 || first.Attr != "introduction" {
		t.Fatalf("unexpected first node: %+v", first)
	}

	html := RenderHTML(tree)
	if !strings.Contains(html, "<ul><li>") {
		t.Fatalf("bullet list not parsed: %q", html)
	}
}

func TestFromSections_DefaultsMissingSectionID(t *testing.T) {
	tree := FromSections([]Section{{Title: "Exhibit List & Index", Content: "One."}})
	sections := ExtractSections(tree)
	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	if sections[0].ID != "exhibit-list-index" {
		t.Fatalf("expected slugged id, got %q", sections[0].ID)
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Introduction", "introduction"},
		{"Awards & Honors", "awards-honors"},
		{"  Response to RFE  ", "response-to-rfe"},
		{"", "section"},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Fatalf("Slugify(%q) = %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestMirror_StableAcrossConversions(t *testing.T) {
	sections := sampleSections()
	first := Mirror(FromSections(sections))
	second := Mirror(FromSections(sections))
	if first != second {
		t.Fatalf("mirror differs across conversions:\n%q\n%q", first, second)
	}
	if !strings.Contains(first, "## Introduction") {
		t.Fatalf("mirror missing section heading: %q", first)
	}
	if !strings.Contains(first, "Alice is a renowned researcher.") {
		t.Fatalf("mirror should flatten marks: %q", first)
	}
	if !strings.Contains(first, "- First point") {
		t.Fatalf("mirror missing bullet item: %q", first)
	}
}

func TestExtractSections_MatchesMirrorDerivation(t *testing.T) {
	tree := FromSections(sampleSections())
	fromTree := ExtractSections(tree)
	fromMirror := SectionsFromMirror(Mirror(tree))

	if len(fromTree) != 2 || len(fromMirror) != 2 {
		t.Fatalf("expected 2 sections, got %d and %d", len(fromTree), len(fromMirror))
	}
	for i := range fromTree {
		if fromTree[i].Heading != fromMirror[i].Heading {
			t.Fatalf("heading mismatch at %d: %q vs %q", i, fromTree[i].Heading, fromMirror[i].Heading)
		}
	}
}

func TestSplitMirror_RoundTripsSections(t *testing.T) {
	mirror := "## Alpha\n\none\n\n## Beta\n\ntwo\nmore two"
	sections := SplitMirror(mirror)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].ID != "alpha" || sections[0].Content != "one" {
		t.Fatalf("unexpected first section %+v", sections[0])
	}
	if sections[1].Content != "two\nmore two" {
		t.Fatalf("unexpected second section %+v", sections[1])
	}
}

func TestParseBlocks_EmptyContent(t *testing.T) {
	tree := FromSections([]Section{{ID: "empty", Title: "Empty", Content: "   "}})
	if len(tree.Children) != 1 {
		t.Fatalf("empty content should produce only the heading, got %d nodes", len(tree.Children))
	}
}
