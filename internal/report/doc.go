// Package report renders crawl results.
//
// Writers:
//   - SimpleWriter: human-readable text for the terminal
//   - JSONWriter and FullJSONWriter: structured output for tooling
//   - MarkdownWriter: GitHub flavored Markdown with a mermaid pie chart
//
// Writers implement the Writer interface and can be combined with MultiWriter.
package report
