// Package main provides the entry point for the pcrawl CLI.
//
// pcrawl is a polite, bounded-concurrency web crawler. It walks the pages
// of one site breadth-first, within a page budget and an optional deadline,
// and reports every URL it visited.
//
// Usage:
//
//	pcrawl crawl https://example.com/
//	pcrawl crawl --list urls.txt
//	pcrawl history https://example.com/
//
// See --help for all available options.
package main

func main() {
	Execute()
}
