package urlnorm

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/purell"
	"golang.org/x/net/idna"
)

// URL is a normalized, absolute http or https URL.
// Equality is plain string equality.
type URL string

// String returns the URL as a string.
func (u URL) String() string {
	return string(u)
}

// Host returns the authority of the URL (host plus non-default port).
// It returns an empty string if u is not a valid URL.
func (u URL) Host() string {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return ""
	}
	return parsed.Host
}

// Path returns the path component of the URL.
func (u URL) Path() string {
	parsed, err := url.Parse(string(u))
	if err != nil {
		return ""
	}
	return parsed.Path
}

// Errors returned by Parse and Domain.
var (
	// ErrNotAbsolute is returned when a URL has no scheme or host.
	ErrNotAbsolute = errors.New("url is not absolute")

	// ErrUnsupportedScheme is returned for schemes other than http and https.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")

	// ErrInvalidHost is returned when the host cannot be converted to ASCII.
	ErrInvalidHost = errors.New("invalid host")
)

// canonicalFlags is the purell flag set applied to every resolved URL.
// FlagRemoveTrailingSlash runs last inside purell, after duplicate slashes
// have been collapsed.
const canonicalFlags = purell.FlagLowercaseScheme |
	purell.FlagLowercaseHost |
	purell.FlagUppercaseEscapes |
	purell.FlagDecodeUnnecessaryEscapes |
	purell.FlagEncodeNecessaryEscapes |
	purell.FlagRemoveDefaultPort |
	purell.FlagRemoveEmptyQuerySeparator |
	purell.FlagRemoveDotSegments |
	purell.FlagRemoveFragment |
	purell.FlagRemoveDuplicateSlashes |
	purell.FlagSortQuery |
	purell.FlagRemoveUnnecessaryHostDots |
	purell.FlagRemoveEmptyPortSeparator |
	purell.FlagRemoveTrailingSlash

// hostProfile maps hosts to ASCII without enforcing STD3 rules, so hosts
// with underscores (common on intranets) are still accepted.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(false),
	idna.Transitional(false),
)

// Normalizer resolves and canonicalizes links. The zero value is not
// usable; create one with New.
type Normalizer struct {
	// subdomains accepts hosts that are subdomains of the base domain.
	subdomains bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithSubdomains controls whether subdomains of the base domain are in
// scope. For base domain "example.com", "blog.example.com" is accepted
// only when enabled. The port must match in either case.
func WithSubdomains(enabled bool) Option {
	return func(n *Normalizer) {
		n.subdomains = enabled
	}
}

// New returns a Normalizer. By default only the exact base domain is in scope.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var defaultNormalizer = New()

// Normalize resolves rawLink against baseURL using exact-host scoping.
// See Normalizer.Normalize.
func Normalize(rawLink, baseURL, baseDomain string) (URL, bool) {
	return defaultNormalizer.Normalize(rawLink, baseURL, baseDomain)
}

// Normalize resolves rawLink against baseURL, canonicalizes it and checks
// it against baseDomain. It returns ok=false when the link cannot be
// parsed, is not http or https, or points outside the base domain.
//
// Normalize has no side effects and is safe for concurrent use.
func (n *Normalizer) Normalize(rawLink, baseURL, baseDomain string) (URL, bool) {
	rawLink = strings.TrimSpace(rawLink)
	if rawLink == "" {
		return "", false
	}

	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() || base.Host == "" {
		return "", false
	}

	ref, err := url.Parse(rawLink)
	if err != nil {
		return "", false
	}

	canonical, err := canonicalize(base.ResolveReference(ref))
	if err != nil {
		return "", false
	}

	if !n.inScope(canonical, baseDomain) {
		return "", false
	}

	return URL(canonical.String()), true
}

// inScope reports whether u belongs to baseDomain under the normalizer policy.
func (n *Normalizer) inScope(u *url.URL, baseDomain string) bool {
	baseDomain = strings.TrimSuffix(strings.ToLower(baseDomain), ".")
	if baseDomain == "" {
		return false
	}
	if u.Host == baseDomain {
		return true
	}
	if !n.subdomains {
		return false
	}

	base := &url.URL{Host: baseDomain}
	if u.Port() != base.Port() {
		return false
	}
	return strings.HasSuffix(u.Hostname(), "."+base.Hostname())
}

// Parse canonicalizes an absolute URL without any scope check.
// It is used for seed URLs supplied by the user.
func Parse(rawURL string) (URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrNotAbsolute, rawURL)
	}

	canonical, err := canonicalize(u)
	if err != nil {
		return "", err
	}
	return URL(canonical.String()), nil
}

// Domain returns the base domain (authority) of an absolute URL in the
// form Normalize expects, e.g. "example.com" or "127.0.0.1:8080".
func Domain(rawURL string) (string, error) {
	u, err := Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Host(), nil
}

// canonicalize applies the canonical form to an already resolved URL.
// u is modified in place.
func canonicalize(u *url.URL) (*url.URL, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Opaque != "" || u.Host == "" {
		return nil, ErrNotAbsolute
	}

	host, err := asciiHost(u)
	if err != nil {
		return nil, err
	}
	u.Host = host

	flags := canonicalFlags
	if _, err := url.ParseQuery(u.RawQuery); err != nil {
		// purell sorts through u.Query(), which drops malformed pairs
		// such as "a=1;b=2". Keep such a query as written.
		flags &^= purell.FlagSortQuery
	}
	marked := markEncodedSlashes(u)

	normalized := purell.NormalizeURL(u, flags)
	if marked {
		normalized = strings.ReplaceAll(normalized, url.PathEscape(slashMark), "%2F")
	}

	out, err := url.Parse(normalized)
	if err != nil {
		return nil, err
	}
	if out.Path == "" {
		out.Path = "/"
		out.RawPath = ""
	}
	return out, nil
}

// slashMark stands in for an encoded slash while purell works on the
// decoded path.
const slashMark = "\x00"

var encodedSlash = regexp.MustCompile(`(?i)%2f`)

// markEncodedSlashes replaces each "%2F" in the path of u with slashMark so
// that it is not treated as a segment separator. It reports whether u was
// changed.
func markEncodedSlashes(u *url.URL) bool {
	escaped := u.EscapedPath()
	if !encodedSlash.MatchString(escaped) || strings.Contains(u.Path, slashMark) {
		return false
	}

	parts := encodedSlash.Split(escaped, -1)
	for i, part := range parts {
		decoded, err := url.PathUnescape(part)
		if err != nil {
			return false
		}
		parts[i] = decoded
	}
	u.Path = strings.Join(parts, slashMark)
	u.RawPath = ""
	return true
}

// asciiHost returns the lowercase ASCII authority of u, keeping the port.
func asciiHost(u *url.URL) (string, error) {
	hostname := strings.TrimSuffix(u.Hostname(), ".")
	if hostname == "" {
		return "", ErrInvalidHost
	}

	if net.ParseIP(hostname) == nil {
		ascii, err := hostProfile.ToASCII(hostname)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidHost, err)
		}
		hostname = ascii
	}

	if port := u.Port(); port != "" {
		return net.JoinHostPort(hostname, port), nil
	}
	if strings.Contains(hostname, ":") {
		return "[" + hostname + "]", nil
	}
	return hostname, nil
}
