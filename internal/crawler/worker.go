package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/pcrawl/internal/frontier"
	"github.com/nao1215/pcrawl/internal/model"
	"github.com/nao1215/pcrawl/internal/urlnorm"
)

// workerResult is what one worker hands back to the coordinator.
type workerResult struct {
	pages []model.PageResult

	// interrupted is set when a fetch failed because the crawl context
	// ended while it was in flight.
	interrupted bool
}

// work is the loop run by every worker. It returns the results of the pages
// this worker processed.
//
// A worker that finds nothing to dequeue does not exit unless the frontier
// is exhausted or the budget is spent: a sibling may still be fetching a
// page that will add more work. Until then it sleeps on the change channel.
func (r *run) work(ctx context.Context) workerResult {
	var out workerResult

	for {
		if ctx.Err() != nil {
			return out
		}

		changed := r.frontier.Changed()
		if task, ok := r.frontier.Dequeue(); ok {
			page := r.process(ctx, task)
			if page.Failed() && page.StatusCode == 0 && ctx.Err() != nil {
				out.interrupted = true
			}
			out.pages = append(out.pages, page)
			continue
		}

		if r.frontier.LimitReached() || r.frontier.IsExhausted() {
			return out
		}

		select {
		case <-ctx.Done():
			return out
		case <-changed:
		}
	}
}

// process fetches one page and enqueues its in-scope links.
// MarkDone runs on every exit path, including a panic in the fetcher or
// extractor, which is recorded as the page error.
func (r *run) process(ctx context.Context, task frontier.Task) (page model.PageResult) {
	defer r.frontier.MarkDone()

	page = model.PageResult{
		URL:     task.URL.String(),
		Seq:     task.Seq,
		Fetched: true,
	}
	start := time.Now()
	r.spider.recorder.PageStarted(task.URL)

	defer func() {
		if v := recover(); v != nil {
			page.SetError(fmt.Errorf("%w: %v", ErrTaskPanic, v))
			r.logger.Error("page processing panicked",
				slog.String("url", page.URL),
				slog.Any("panic", v),
			)
		}
		page.Duration = time.Since(start)
		r.spider.recorder.PageFinished(&page)
	}()

	body, status, finalURL, err := r.fetch(ctx, task)
	page.StatusCode = status
	if err != nil {
		page.SetError(err)
		r.logger.Warn("fetch failed",
			slog.String("url", page.URL),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		return page
	}
	if status < 200 || status > 299 {
		page.SetError(fmt.Errorf("%w: %d", ErrUnexpectedStatus, status))
		r.logger.Warn("unexpected status",
			slog.String("url", page.URL),
			slog.Int("status", status),
		)
		return page
	}

	page.ContentHash = model.HashContent(body)

	base := page.URL
	if finalURL != "" {
		served, inScope := r.norm.Normalize(finalURL, page.URL, r.domain)
		if !inScope {
			r.logger.Debug("redirected out of scope",
				slog.String("url", page.URL),
				slog.String("final_url", finalURL),
			)
			if u, err := urlnorm.Parse(finalURL); err == nil {
				page.RedirectedTo = u.String()
			}
			return page
		}
		if served.String() != page.URL {
			page.RedirectedTo = served.String()
		}
		base = finalURL
	}

	links := r.spider.extractor.ExtractLinks(body)
	page.OutboundLinks = len(links)
	for _, raw := range links {
		u, ok := r.norm.Normalize(raw, base, r.domain)
		if !ok || !r.spider.filter.allow(u) {
			continue
		}
		if r.frontier.TryEnqueue(u) {
			page.EnqueuedLinks++
		}
	}

	r.logger.Debug("page crawled",
		slog.String("url", page.URL),
		slog.Int("status", status),
		slog.Int("links", page.OutboundLinks),
		slog.Int("enqueued", page.EnqueuedLinks),
	)
	return page
}

// fetch calls the fetcher under the per-request timeout. finalURL is empty
// unless the fetcher reports where the body was served from.
func (r *run) fetch(ctx context.Context, task frontier.Task) (body []byte, status int, finalURL string, err error) {
	if r.spider.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.spider.requestTimeout)
		defer cancel()
	}
	if rf, ok := r.spider.fetcher.(ResolvingFetcher); ok {
		return rf.FetchResolved(ctx, task.URL)
	}
	body, status, err = r.spider.fetcher.Fetch(ctx, task.URL)
	return body, status, "", err
}
