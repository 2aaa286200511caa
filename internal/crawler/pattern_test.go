package crawler

import (
	"testing"

	"github.com/nao1215/pcrawl/internal/urlnorm"
)

func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		// Prefix patterns with /*
		{"admin prefix match", "/admin/*", "/admin/dashboard", true},
		{"admin prefix exact", "/admin/*", "/admin", true},
		{"admin prefix nested", "/admin/*", "/admin/users/edit", true},
		{"admin prefix no match", "/admin/*", "/user/profile", false},
		{"admin prefix partial no match", "/admin/*", "/administrator", false},

		// Extension patterns with *.
		{"pdf extension", "*.pdf", "/docs/file.pdf", true},
		{"pdf extension nested", "*.pdf", "/a/b/c/report.pdf", true},
		{"pdf extension no match", "*.pdf", "/docs/file.txt", false},

		// Exact match patterns
		{"exact match", "/logout", "/logout", true},
		{"exact no match", "/logout", "/login", false},

		// Wildcards in the middle
		{"single char wildcard", "/api/v?/users", "/api/v1/users", true},
		{"single char wildcard no match", "/api/v?/users", "/api/v10/users", false},
		{"segment wildcard", "/blog/*/comments", "/blog/2024/comments", true},

		// Segment-only patterns
		{"filename glob", "logout*", "/account/logout-all", true},

		// Root path
		{"root path", "/", "/", true},
		{"root no match prefix", "/admin/*", "/", false},

		// Malformed pattern
		{"malformed pattern", "/[", "/[", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := matchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestPathFilter(t *testing.T) {
	t.Parallel()

	t.Run("no patterns allows all", func(t *testing.T) {
		t.Parallel()

		if !(pathFilter{}).allow("http://example.com/any/path") {
			t.Error("expected all URLs to be allowed when no patterns set")
		}
	})

	t.Run("ignore patterns block matching URLs", func(t *testing.T) {
		t.Parallel()

		f := pathFilter{ignore: []string{"/admin/*", "*.pdf"}}
		tests := []struct {
			url  urlnorm.URL
			want bool
		}{
			{"http://example.com/admin/dashboard", false},
			{"http://example.com/docs/file.pdf", false},
			{"http://example.com/public/page", true},
		}
		for _, tt := range tests {
			if got := f.allow(tt.url); got != tt.want {
				t.Errorf("allow(%q) = %v, want %v", tt.url, got, tt.want)
			}
		}
	})

	t.Run("follow patterns restrict to matching URLs", func(t *testing.T) {
		t.Parallel()

		f := pathFilter{follow: []string{"/docs/*"}}
		if !f.allow("http://example.com/docs/intro") {
			t.Error("expected /docs/intro to be followed")
		}
		if f.allow("http://example.com/blog/post") {
			t.Error("expected /blog/post to be skipped")
		}
	})

	t.Run("ignore takes precedence over follow", func(t *testing.T) {
		t.Parallel()

		f := pathFilter{
			ignore: []string{"/docs/private/*"},
			follow: []string{"/docs/*"},
		}
		if f.allow("http://example.com/docs/private/key") {
			t.Error("expected ignored path to be skipped")
		}
		if !f.allow("http://example.com/docs/public") {
			t.Error("expected followed path to be allowed")
		}
	})
}
