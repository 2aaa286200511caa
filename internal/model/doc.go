// Package model defines the data structures produced by a crawl.
//
// This package contains the following main types:
//   - PageResult: the outcome of visiting (or not visiting) one URL
//   - CrawlResult: the final output of a crawl, built once at shutdown
//   - StopReason: why the crawl stopped
//
// The crawler, report, and database packages all consume these types, so
// they live in their own package to avoid import cycles. Every type is
// serializable to JSON for report output and run history storage.
package model
