package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/pcrawl/internal/frontier"
	"github.com/nao1215/pcrawl/internal/model"
	"github.com/nao1215/pcrawl/internal/urlnorm"
	"golang.org/x/sync/errgroup"
)

// Default crawl limits.
const (
	// DefaultMaxPages is the default page budget.
	DefaultMaxPages = 100

	// DefaultMaxWorkers is the default size of the worker pool.
	DefaultMaxWorkers = 8

	// DefaultRequestTimeout bounds a single fetch.
	DefaultRequestTimeout = 30 * time.Second
)

// Spider coordinates crawls.
//
// A Spider holds configuration only. Every Crawl call builds its own
// frontier and worker pool, so one Spider can run several independent
// crawls at the same time.
type Spider struct {
	// fetcher retrieves pages.
	fetcher Fetcher

	// extractor finds candidate links in page bodies.
	extractor Extractor

	// recorder observes per-page progress.
	recorder Recorder

	// logger receives lifecycle and per-page events.
	logger *slog.Logger

	// stateHook is notified on every state transition.
	stateHook StateHook

	// maxPages is the maximum number of fetches initiated per crawl.
	maxPages int

	// maxWorkers is the number of concurrent workers per crawl.
	maxWorkers int

	// requestTimeout bounds each fetch. Zero disables the per-request bound.
	requestTimeout time.Duration

	// deadline bounds the whole crawl. Zero means no deadline.
	deadline time.Duration

	// subdomains puts subdomains of the start host in scope.
	subdomains bool

	// filter restricts which discovered paths are followed.
	filter pathFilter
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxPages sets the maximum number of pages fetched per crawl.
func WithMaxPages(maxPages int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = maxPages
	}
}

// WithMaxWorkers sets the number of concurrent workers.
func WithMaxWorkers(n int) SpiderOption {
	return func(s *Spider) {
		s.maxWorkers = n
	}
}

// WithRequestTimeout bounds each fetch.
func WithRequestTimeout(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.requestTimeout = d
	}
}

// WithDeadline bounds the whole crawl. When it expires the crawl drains
// and returns a partial result.
func WithDeadline(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.deadline = d
	}
}

// WithExtractor replaces the default HTMLExtractor.
func WithExtractor(e Extractor) SpiderOption {
	return func(s *Spider) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithRecorder registers a Recorder for per-page events.
func WithRecorder(r Recorder) SpiderOption {
	return func(s *Spider) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStateHook registers a function called on every state transition.
func WithStateHook(hook StateHook) SpiderOption {
	return func(s *Spider) {
		s.stateHook = hook
	}
}

// WithSubdomains puts subdomains of the start host in scope.
// By default only the exact start host is crawled.
func WithSubdomains(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.subdomains = enabled
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
// The start URL is never filtered.
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.ignore = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only discovered URLs matching at least one pattern are crawled.
// The start URL is never filtered.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.filter.follow = patterns
	}
}

// NewSpider creates a new Spider that retrieves pages with f.
func NewSpider(f Fetcher, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:        f,
		extractor:      NewHTMLExtractor(),
		recorder:       nopRecorder{},
		logger:         slog.Default(),
		maxPages:       DefaultMaxPages,
		maxWorkers:     DefaultMaxWorkers,
		requestTimeout: DefaultRequestTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Crawl crawls the site reachable from startURL and returns the result.
//
// The crawl is confined to the host of startURL (and its subdomains when
// enabled). It stops when the frontier is exhausted, when the page budget
// has been handed out, when the deadline expires, or when ctx is cancelled.
// The last two produce a result with Partial set and a nil error.
//
// An error is returned only if the crawl could not start.
func (s *Spider) Crawl(ctx context.Context, startURL string) (*model.CrawlResult, error) {
	if s.fetcher == nil {
		return nil, errors.New("crawler: nil fetcher")
	}
	if s.maxPages < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxPages, s.maxPages)
	}
	if s.maxWorkers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxWorkers, s.maxWorkers)
	}

	seed, err := urlnorm.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}

	r := &run{
		spider:   s,
		seed:     seed,
		domain:   seed.Host(),
		frontier: frontier.New(frontier.WithLimit(s.maxPages)),
		norm:     urlnorm.New(urlnorm.WithSubdomains(s.subdomains)),
		logger:   s.logger.With(slog.String("start_url", seed.String())),
		state:    StateIdle,
	}
	return r.execute(ctx), nil
}

// run is the state of a single crawl.
type run struct {
	spider   *Spider
	seed     urlnorm.URL
	domain   string
	frontier *frontier.Frontier
	norm     *urlnorm.Normalizer
	logger   *slog.Logger

	// state is only read and written by the coordinating goroutine.
	state State
}

// execute drives the crawl from Idle to Done.
func (r *run) execute(parent context.Context) *model.CrawlResult {
	startedAt := time.Now()

	r.frontier.TryEnqueue(r.seed)
	r.transition(StateRunning)

	ctx, cancel := r.crawlContext(parent)
	defer cancel()

	workers := min(r.spider.maxWorkers, r.spider.maxPages)
	perWorker := make([]workerResult, workers)

	var g errgroup.Group
	for i := range workers {
		g.Go(func() error {
			perWorker[i] = r.work(ctx)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	reason := r.await(ctx, done)
	r.transition(StateDraining)
	<-done

	// The budget may have been spent on the last reachable page.
	if reason == model.StopReasonBudget && r.frontier.IsExhausted() {
		reason = model.StopReasonExhausted
	}

	// The deadline or a cancellation can still cut off fetches that were
	// in flight while draining.
	if !reason.IsPartial() && ctx.Err() != nil && interrupted(perWorker) {
		reason = contextReason(ctx)
	}

	result := r.result(perWorker, reason, startedAt)
	r.transition(StateDone)
	return result
}

// crawlContext derives the context workers observe.
func (r *run) crawlContext(parent context.Context) (context.Context, context.CancelFunc) {
	if r.spider.deadline > 0 {
		return context.WithTimeout(parent, r.spider.deadline)
	}
	return context.WithCancel(parent)
}

// await blocks until a stop condition holds and returns it.
//
// Exhaustion is only accepted if the frontier did not change between
// fetching the change channel and observing IsExhausted. Since new work can
// only come from in-flight tasks, an exhausted frontier with no intervening
// change is quiescent.
func (r *run) await(ctx context.Context, done <-chan struct{}) model.StopReason {
	for {
		changed := r.frontier.Changed()

		if r.frontier.LimitReached() {
			return model.StopReasonBudget
		}
		if r.frontier.IsExhausted() {
			select {
			case <-changed:
				continue
			default:
				return model.StopReasonExhausted
			}
		}

		select {
		case <-ctx.Done():
			return contextReason(ctx)
		case <-done:
			// Workers only return on a stop condition; find out which one.
			if ctx.Err() != nil {
				return contextReason(ctx)
			}
			if r.frontier.LimitReached() {
				return model.StopReasonBudget
			}
			return model.StopReasonExhausted
		case <-changed:
		}
	}
}

// interrupted reports whether any worker had a fetch cut off by the crawl
// context.
func interrupted(results []workerResult) bool {
	for _, res := range results {
		if res.interrupted {
			return true
		}
	}
	return false
}

// contextReason maps a done context to a stop reason.
func contextReason(ctx context.Context) model.StopReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.StopReasonDeadline
	}
	return model.StopReasonCancelled
}

// transition moves the crawl to the next state.
func (r *run) transition(to State) {
	from := r.state
	r.state = to

	stats := r.frontier.Stats()
	r.logger.Info("crawl state changed",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Int("visited", stats.Visited),
		slog.Int("dequeued", stats.Dequeued),
	)

	if r.spider.stateHook != nil {
		r.spider.stateHook(r.seed.String(), from, to)
	}
}

// result merges the worker-local page results with the visited set.
func (r *run) result(perWorker []workerResult, reason model.StopReason, startedAt time.Time) *model.CrawlResult {
	processed := make(map[string]model.PageResult)
	for _, res := range perWorker {
		for _, page := range res.pages {
			processed[page.URL] = page
		}
	}

	visited := r.frontier.Snapshot()
	pages := make([]model.PageResult, 0, len(visited))
	for seq, u := range visited {
		page, ok := processed[u.String()]
		if !ok {
			page = model.PageResult{URL: u.String(), Seq: seq}
		}
		pages = append(pages, page)
	}

	return &model.CrawlResult{
		StartURL:   r.seed.String(),
		BaseDomain: r.domain,
		Pages:      pages,
		Partial:    reason.IsPartial(),
		Reason:     reason,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
}
