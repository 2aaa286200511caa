package crawler

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// HTMLExtractor extracts hyperlinks from HTML documents.
// It collects the href attribute of every <a> and <area> element.
//
// golang.org/x/net/html builds the same tree a browser would, so malformed
// markup, unclosed tags, and stray text are handled the way users see them.
type HTMLExtractor struct {
	// maxLinks caps the number of links returned per page. Zero means no cap.
	maxLinks int
}

// ExtractorOption configures an HTMLExtractor.
type ExtractorOption func(*HTMLExtractor)

// WithMaxLinks caps the number of links returned for a single page.
// Pages that exceed the cap are truncated in document order.
func WithMaxLinks(n int) ExtractorOption {
	return func(e *HTMLExtractor) {
		if n > 0 {
			e.maxLinks = n
		}
	}
}

// NewHTMLExtractor creates an HTMLExtractor.
func NewHTMLExtractor(opts ...ExtractorOption) *HTMLExtractor {
	e := &HTMLExtractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractLinks returns the raw href values found in body, in document order.
//
// The body is decoded to UTF-8 first, using the byte order mark or a
// <meta charset> declaration when present. If the document declares an
// absolute <base href>, every link is resolved against it so that later
// resolution against the page URL yields the address a browser would use.
// Unparseable input yields no links.
func (e *HTMLExtractor) ExtractLinks(body []byte) []string {
	if len(body) == 0 {
		return nil
	}

	var r io.Reader = bytes.NewReader(body)
	if decoded, err := charset.NewReader(r, ""); err == nil {
		r = decoded
	} else {
		r = bytes.NewReader(body)
	}

	doc, err := html.Parse(r)
	if err != nil {
		return nil
	}

	var (
		base  *url.URL
		links []string
	)

	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "base":
				if base == nil {
					base = parseBase(getAttr(n, "href"))
				}
			case "a", "area":
				if href, ok := lookupAttr(n, "href"); ok && strings.TrimSpace(href) != "" {
					links = append(links, href)
					if e.maxLinks > 0 && len(links) >= e.maxLinks {
						return false
					}
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)

	if base != nil {
		for i, link := range links {
			links[i] = resolveAgainst(base, link)
		}
	}
	return links
}

// parseBase returns the <base href> value if it is an absolute URL.
func parseBase(href string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || !u.IsAbs() {
		return nil
	}
	return u
}

// resolveAgainst resolves link against base, leaving it unchanged when it
// cannot be parsed.
func resolveAgainst(base *url.URL, link string) string {
	ref, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

// lookupAttr retrieves an attribute value and reports whether it exists.
func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
