package crawler

import (
	"fmt"
	"strings"
	"testing"
)

func TestHTMLExtractor(t *testing.T) {
	t.Parallel()

	t.Run("extracts anchor and area links in document order", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
			<a href="/internal">Internal</a>
			<a href="http://other.test/external">External</a>
			<map><area href="/map-target" alt="x"></map>
			<a name="no-href">Anchor</a>
			<link href="/style.css" rel="stylesheet">
		</body></html>`

		links := NewHTMLExtractor().ExtractLinks([]byte(html))
		want := []string{"/internal", "http://other.test/external", "/map-target"}
		if len(links) != len(want) {
			t.Fatalf("expected %v, got %v", want, links)
		}
		for i := range want {
			if links[i] != want[i] {
				t.Errorf("link %d: expected %q, got %q", i, want[i], links[i])
			}
		}
	})

	t.Run("returns raw special links untouched", func(t *testing.T) {
		t.Parallel()

		html := `<a href="mailto:a@b.test">m</a><a href="javascript:void(0)">j</a><a href="#top">f</a><a href="  ">blank</a>`

		links := NewHTMLExtractor().ExtractLinks([]byte(html))
		if len(links) != 3 {
			t.Fatalf("expected 3 links, got %v", links)
		}
		if links[2] != "#top" {
			t.Errorf("expected fragment link to be returned raw, got %q", links[2])
		}
	})

	t.Run("resolves links against an absolute base element", func(t *testing.T) {
		t.Parallel()

		html := `<html><head><base href="http://example.com/docs/"></head>
			<body><a href="guide">Guide</a><a href="/root">Root</a><a href="https://x.test/">X</a></body></html>`

		links := NewHTMLExtractor().ExtractLinks([]byte(html))
		want := []string{"http://example.com/docs/guide", "http://example.com/root", "https://x.test/"}
		if len(links) != len(want) {
			t.Fatalf("expected %v, got %v", want, links)
		}
		for i := range want {
			if links[i] != want[i] {
				t.Errorf("link %d: expected %q, got %q", i, want[i], links[i])
			}
		}
	})

	t.Run("ignores a relative base element", func(t *testing.T) {
		t.Parallel()

		html := `<head><base href="/docs/"></head><body><a href="guide">Guide</a></body>`

		links := NewHTMLExtractor().ExtractLinks([]byte(html))
		if len(links) != 1 || links[0] != "guide" {
			t.Errorf("expected raw link, got %v", links)
		}
	})

	t.Run("handles malformed HTML", func(t *testing.T) {
		t.Parallel()

		html := `<div><a href="/one">one</a><p>unclosed paragraph<li><a href="/two">two</a></span></div></body></html><p>`

		links := NewHTMLExtractor().ExtractLinks([]byte(html))
		if len(links) != 2 {
			t.Errorf("expected 2 links, got %v", links)
		}
	})

	t.Run("decodes declared charsets", func(t *testing.T) {
		t.Parallel()

		// "caf\xe9" is "café" in ISO-8859-1.
		html := "<html><head><meta charset=\"iso-8859-1\"></head><body><a href=\"/caf\xe9\">x</a></body></html>"

		links := NewHTMLExtractor().ExtractLinks([]byte(html))
		if len(links) != 1 || links[0] != "/café" {
			t.Errorf("expected decoded link, got %q", links)
		}
	})

	t.Run("caps the number of links", func(t *testing.T) {
		t.Parallel()

		var b strings.Builder
		for i := range 20 {
			fmt.Fprintf(&b, `<a href="/p%d">p</a>`, i)
		}

		links := NewHTMLExtractor(WithMaxLinks(5)).ExtractLinks([]byte(b.String()))
		if len(links) != 5 {
			t.Fatalf("expected 5 links, got %d", len(links))
		}
		if links[4] != "/p4" {
			t.Errorf("expected the first links in document order, got %v", links)
		}
	})

	t.Run("empty body yields no links", func(t *testing.T) {
		t.Parallel()

		if links := NewHTMLExtractor().ExtractLinks(nil); len(links) != 0 {
			t.Errorf("expected no links, got %v", links)
		}
	})

	t.Run("non-HTML text yields no links", func(t *testing.T) {
		t.Parallel()

		if links := NewHTMLExtractor().ExtractLinks([]byte(`{"href": "/not-a-link"}`)); len(links) != 0 {
			t.Errorf("expected no links, got %v", links)
		}
	})
}

func TestExtractorFunc(t *testing.T) {
	t.Parallel()

	var e Extractor = ExtractorFunc(func(body []byte) []string {
		return strings.Fields(string(body))
	})
	links := e.ExtractLinks([]byte("/a /b"))
	if len(links) != 2 || links[1] != "/b" {
		t.Errorf("unexpected links: %v", links)
	}
}
