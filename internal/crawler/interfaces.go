package crawler

import (
	"context"

	"github.com/nao1215/pcrawl/internal/model"
	"github.com/nao1215/pcrawl/internal/urlnorm"
)

// Fetcher retrieves a page.
//
// A non-nil error and a status code outside 2xx are both treated as a
// failure of that page only. Implementations must honor ctx, which carries
// the per-request timeout.
type Fetcher interface {
	Fetch(ctx context.Context, u urlnorm.URL) (body []byte, statusCode int, err error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, u urlnorm.URL) ([]byte, int, error)

// Fetch calls f(ctx, u).
func (f FetcherFunc) Fetch(ctx context.Context, u urlnorm.URL) ([]byte, int, error) {
	return f(ctx, u)
}

// ResolvingFetcher is implemented by fetchers that follow redirects.
// FetchResolved also returns the absolute URL the body was served from,
// which the crawler uses as the base for relative links on the page.
// An empty finalURL means the request URL.
type ResolvingFetcher interface {
	Fetcher
	FetchResolved(ctx context.Context, u urlnorm.URL) (body []byte, statusCode int, finalURL string, err error)
}

// Extractor returns raw, unvalidated candidate links found in a page body.
// The result may contain relative paths, fragments, and non-HTTP schemes;
// the crawler normalizes and filters every entry.
type Extractor interface {
	ExtractLinks(body []byte) []string
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(body []byte) []string

// ExtractLinks calls f(body).
func (f ExtractorFunc) ExtractLinks(body []byte) []string {
	return f(body)
}

// Recorder observes per-page progress.
// Methods are called concurrently from worker goroutines.
type Recorder interface {
	// PageStarted is called after a task is dequeued, before fetching.
	PageStarted(u urlnorm.URL)

	// PageFinished is called once per started page with its final result.
	PageFinished(page *model.PageResult)
}

type nopRecorder struct{}

func (nopRecorder) PageStarted(urlnorm.URL)        {}
func (nopRecorder) PageFinished(*model.PageResult) {}
