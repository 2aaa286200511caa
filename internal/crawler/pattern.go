package crawler

import (
	"path"
	"strings"

	"github.com/nao1215/pcrawl/internal/urlnorm"
)

// pathFilter decides whether a normalized URL may enter the frontier based
// on glob patterns matched against its path.
type pathFilter struct {
	// ignore patterns reject a path when any of them matches.
	ignore []string

	// follow patterns, when set, require at least one match.
	follow []string
}

// allow reports whether u passes the filter.
//
// Ignore patterns are checked first. If follow patterns are set, the path
// must also match one of them.
func (f pathFilter) allow(u urlnorm.URL) bool {
	p := u.Path()

	for _, pattern := range f.ignore {
		if matchPattern(pattern, p) {
			return false
		}
	}

	if len(f.follow) == 0 {
		return true
	}
	for _, pattern := range f.follow {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern checks if a URL path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-slash characters
//   - ? to match any single character
//   - a trailing /* to match everything below a directory
//   - a leading *. to match a file extension anywhere
//
// Examples:
//   - "/admin/*" matches "/admin", "/admin/users", "/admin/users/1"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1", "/api/v2"
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(p, pattern[1:]) {
		return true
	}

	if matched, err := path.Match(pattern, p); err == nil && matched {
		return true
	}

	// Patterns without a slash also apply to the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}

	return false
}
