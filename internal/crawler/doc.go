// Package crawler provides a bounded-concurrency breadth-first web crawler.
//
// # Architecture
//
// The package is designed around the Spider type, which coordinates one or
// more crawls. Each call to Spider.Crawl owns a private frontier.Frontier,
// seeds it with the start URL, and runs a fixed-size pool of workers that
// drain it:
//
//	Crawl ─┬─ worker ─┐
//	       ├─ worker ─┼─ Dequeue → Fetch → ExtractLinks → Normalize → TryEnqueue → MarkDone
//	       └─ worker ─┘
//
// The Frontier is the only state shared between workers. Everything a worker
// learns about a page is kept in a worker-local slice and merged by the
// coordinator after all workers have returned.
//
// # Components
//
//   - Spider: the coordinator that owns the budget, the worker pool, and
//     termination detection
//   - Fetcher: the transport that returns a page body and status code
//   - Extractor: the parser that returns raw candidate links from a body
//   - HTMLExtractor: the default Extractor built on golang.org/x/net/html
//   - Recorder: an observer of per-page progress, used for metrics
//
// # Lifecycle
//
// A crawl moves through Idle, Running, Draining, and Done. It leaves Running
// when the page budget has been handed out, when the frontier is exhausted,
// when the global deadline expires, or when the caller cancels the context.
// Draining waits for every worker to return; a crawl stopped by the deadline
// or by cancellation produces a partial result rather than an error.
//
// # Usage
//
//	spider := crawler.NewSpider(fetcher.NewHTTPFetcher(),
//	    crawler.WithMaxPages(100),
//	    crawler.WithMaxWorkers(8),
//	)
//	result, err := spider.Crawl(ctx, "https://example.com/")
//
// # Failure Handling
//
// Fetch errors, non-2xx responses, and panics in a Fetcher or Extractor are
// recorded on the PageResult of the affected URL. They never stop other
// workers and never surface as the error returned by Crawl. Only
// configuration problems, such as an invalid start URL, are returned before
// the crawl begins.
package crawler
