// Package batch runs several independent crawls concurrently.
//
// Each start URL gets its own crawl, with its own frontier and worker pool.
// The number of crawls running at the same time is bounded.
package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/pcrawl/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the default number of concurrent crawls.
const DefaultConcurrency = 4

// Crawler runs one crawl. *crawler.Spider implements it.
type Crawler interface {
	Crawl(ctx context.Context, startURL string) (*model.CrawlResult, error)
}

// Outcome is the result of one crawl in a batch.
type Outcome struct {
	// StartURL is the start URL as given by the caller.
	StartURL string

	// Result is the crawl result, nil if the crawl could not start.
	Result *model.CrawlResult

	// Err is the error that prevented the crawl from starting.
	Err error
}

// Processor runs crawls with bounded concurrency.
type Processor struct {
	// crawler performs each crawl.
	crawler Crawler

	// concurrency is the maximum number of concurrent crawls.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets a custom logger for batch processing.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// NewProcessor creates a Processor that crawls with c.
func NewProcessor(c Crawler, opts ...Option) *Processor {
	p := &Processor{
		crawler:     c,
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// Run crawls every start URL and returns the outcomes in input order.
// A crawl that fails to start does not stop the others; its error is
// recorded on its Outcome.
func (p *Processor) Run(ctx context.Context, startURLs []string) []Outcome {
	outcomes := make([]Outcome, len(startURLs))
	p.RunWithCallback(ctx, startURLs, func(o Outcome, index int) {
		// Each index is written by exactly one goroutine.
		outcomes[index] = o
	})
	return outcomes
}

// RunWithCallback crawls every start URL and calls callback as each crawl
// finishes. The callback is called from the goroutine that ran the crawl,
// so it must be safe for concurrent use if it touches shared state.
func (p *Processor) RunWithCallback(ctx context.Context, startURLs []string, callback func(o Outcome, index int)) {
	p.logger.Info("starting batch crawl",
		"total_sites", len(startURLs),
		"concurrency", p.concurrency,
	)
	startTime := time.Now()

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, startURL := range startURLs {
		g.Go(func() error {
			result, err := p.crawler.Crawl(ctx, startURL)
			if err != nil {
				p.logger.Warn("crawl failed to start",
					"start_url", startURL,
					"error", err,
				)
			} else {
				p.logger.Info("crawl completed",
					"start_url", startURL,
					"pages", len(result.Pages),
					"reason", result.Reason.String(),
				)
			}

			callback(Outcome{StartURL: startURL, Result: result, Err: err}, i)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // goroutines never return an error

	p.logger.Info("batch crawl complete",
		"total_sites", len(startURLs),
		"elapsed", time.Since(startTime),
	)
}
