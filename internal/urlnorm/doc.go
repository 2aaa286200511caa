// Package urlnorm canonicalizes links discovered during a crawl.
//
// A link is resolved against the page it was found on, reduced to a single
// canonical spelling and checked against the crawl scope. Two links that
// name the same resource normalize to byte-identical URL values, which is
// what the frontier relies on for deduplication.
//
// # Canonical form
//
//   - scheme and host are lowercased, internationalized hosts are converted
//     to their ASCII (punycode) form
//   - the default port for the scheme is removed
//   - dot segments are resolved and duplicate slashes collapsed
//   - query parameters are sorted
//   - the fragment is removed
//   - a single trailing slash is removed, and an empty path is written as "/"
//
// The trailing slash policy means that "http://example.com/a" and
// "http://example.com/a/" are the same URL, while "http://example.com" and
// "http://example.com/" both normalize to "http://example.com/".
//
// # Scope
//
// Only http and https links whose authority (host and optional non-default
// port) equals the base domain are accepted. Subdomains are out of scope
// unless a Normalizer is created with WithSubdomains(true).
package urlnorm
