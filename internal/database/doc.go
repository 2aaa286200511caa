// Package database stores crawl run history in SQLite.
//
// History is opt-in: pcrawl only opens the database when --save is given.
// Each run is a row in crawl_runs keyed by a UUID, holding summary counts
// and the full result as JSON. Its visited URLs are also stored one per row
// in crawl_pages so that two runs can be compared without decoding JSON.
//
// modernc.org/sqlite is a CGO-free driver, so pcrawl cross-compiles without
// a C toolchain.
package database
