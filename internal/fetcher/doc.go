// Package fetcher retrieves pages over HTTP for the crawler.
//
// HTTPFetcher performs one GET per call and returns the body, capped at a
// configurable size, together with the status code. Non-2xx responses are
// not errors at this layer; the crawler decides how to record them. Bodies
// that are not HTML are dropped so the crawler does not look for links in
// images or archives.
//
// RateLimited wraps any fetcher with a per-host politeness delay backed by
// golang.org/x/time/rate.
//
// Requests can be routed through a SOCKS5 proxy (for example a local Tor
// daemon) with WithProxy.
package fetcher
