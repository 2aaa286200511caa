package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/pcrawl/internal/fetcher"
	"github.com/nao1215/pcrawl/internal/model"
	"github.com/nao1215/pcrawl/internal/urlnorm"
)

// quietLogger discards log output in tests.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSpider(f Fetcher, opts ...SpiderOption) *Spider {
	return NewSpider(f, append([]SpiderOption{WithLogger(quietLogger())}, opts...)...)
}

// assertNoDuplicateFetch fails if any URL appears twice in calls.
func assertNoDuplicateFetch(t *testing.T, calls []urlnorm.URL) {
	t.Helper()

	seen := make(map[urlnorm.URL]bool, len(calls))
	for _, u := range calls {
		if seen[u] {
			t.Errorf("%s fetched more than once", u)
		}
		seen[u] = true
	}
}

func TestSpiderCrawl(t *testing.T) {
	t.Parallel()

	t.Run("visits a graph with a cycle exactly once per page", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(map[string][]string{
			"http://example.com/":  {"/b", "/c"},
			"http://example.com/b": {"/", "/d"},
			"http://example.com/c": {},
			"http://example.com/d": {},
		})
		spider := newTestSpider(f, WithMaxPages(10), WithMaxWorkers(2))

		result, err := spider.Crawl(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		calls := f.callLog()
		if len(calls) != 4 {
			t.Errorf("expected 4 fetches, got %d: %v", len(calls), calls)
		}
		assertNoDuplicateFetch(t, calls)

		want := map[string]bool{
			"http://example.com/":  true,
			"http://example.com/b": true,
			"http://example.com/c": true,
			"http://example.com/d": true,
		}
		visited := result.Visited()
		if len(visited) != len(want) {
			t.Fatalf("expected %d visited URLs, got %v", len(want), visited)
		}
		for _, u := range visited {
			if !want[u] {
				t.Errorf("unexpected visited URL %s", u)
			}
		}

		if visited[0] != "http://example.com/" {
			t.Errorf("expected seed first, got %s", visited[0])
		}
		if result.Reason != model.StopReasonExhausted {
			t.Errorf("expected reason exhausted, got %s", result.Reason)
		}
		if result.Partial {
			t.Error("completed crawl should not be partial")
		}
		if root := result.Page("http://example.com/"); root == nil || root.OutboundLinks != 2 || root.EnqueuedLinks != 2 {
			t.Errorf("unexpected seed result: %+v", root)
		}
	})

	t.Run("records a failing seed and terminates", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(nil)
		f.fail["http://example.com/"] = errConnRefused
		spider := newTestSpider(f, WithMaxPages(10), WithMaxWorkers(4))

		result, err := spider.Crawl(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Pages) != 1 {
			t.Fatalf("expected 1 page, got %d", len(result.Pages))
		}
		seed := result.Pages[0]
		if !seed.Fetched {
			t.Error("seed should be marked as fetched")
		}
		if seed.Error == nil || !strings.Contains(*seed.Error, "connection refused") {
			t.Errorf("expected connection error, got %v", seed.Error)
		}
		if seed.EnqueuedLinks != 0 {
			t.Errorf("expected no discovered children, got %d", seed.EnqueuedLinks)
		}
		if result.Reason != model.StopReasonExhausted {
			t.Errorf("expected reason exhausted, got %s", result.Reason)
		}
	})

	t.Run("never fetches a URL twice on a dense graph", func(t *testing.T) {
		t.Parallel()

		const nodes = 30
		links := make(map[string][]string, nodes)
		for i := range nodes {
			var hrefs []string
			for j := range nodes {
				hrefs = append(hrefs,
					fmt.Sprintf("/p%d", j),
					fmt.Sprintf("/p%d/", j),
					fmt.Sprintf("/p%d#section", j),
					fmt.Sprintf("HTTP://EXAMPLE.COM:80/p%d", j),
				)
			}
			links[fmt.Sprintf("http://example.com/p%d", i)] = hrefs
		}

		f := newGraphFetcher(links)
		spider := newTestSpider(f, WithMaxPages(100), WithMaxWorkers(8))

		result, err := spider.Crawl(context.Background(), "http://example.com/p0")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		calls := f.callLog()
		assertNoDuplicateFetch(t, calls)
		if len(calls) != nodes {
			t.Errorf("expected %d fetches, got %d", nodes, len(calls))
		}
		if len(result.Pages) != nodes {
			t.Errorf("expected %d visited URLs, got %d", nodes, len(result.Pages))
		}
		if result.ErrorCount() != 0 {
			t.Errorf("expected no errors, got %d", result.ErrorCount())
		}
	})

	t.Run("never exceeds the page budget", func(t *testing.T) {
		t.Parallel()

		var hrefs []string
		links := map[string][]string{}
		for i := range 50 {
			hrefs = append(hrefs, fmt.Sprintf("/p%d", i))
			links[fmt.Sprintf("http://example.com/p%d", i)] = []string{"/"}
		}
		links["http://example.com/"] = hrefs

		f := newGraphFetcher(links)
		spider := newTestSpider(f, WithMaxPages(5), WithMaxWorkers(3))

		result, err := spider.Crawl(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := len(f.callLog()); got != 5 {
			t.Errorf("expected exactly 5 fetches, got %d", got)
		}
		if result.FetchedCount() != 5 {
			t.Errorf("expected 5 fetched pages, got %d", result.FetchedCount())
		}
		if len(result.Pages) != 51 {
			t.Errorf("expected 51 visited URLs, got %d", len(result.Pages))
		}
		if result.UnfetchedCount() != 46 {
			t.Errorf("expected 46 unfetched URLs, got %d", result.UnfetchedCount())
		}
		if result.Reason != model.StopReasonBudget {
			t.Errorf("expected reason budget, got %s", result.Reason)
		}
		if result.Partial {
			t.Error("budget stop should not be partial")
		}
	})

	t.Run("budget equal to graph size reports exhaustion", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(map[string][]string{
			"http://example.com/":  {"/a"},
			"http://example.com/a": {},
		})
		spider := newTestSpider(f, WithMaxPages(2), WithMaxWorkers(2))

		result, err := spider.Crawl(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Reason != model.StopReasonExhausted {
			t.Errorf("expected reason exhausted, got %s", result.Reason)
		}
	})

	t.Run("keeps the crawl on the start host", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(map[string][]string{
			"http://example.com/": {
				"https://other.com/x",
				"http://sub.example.com/",
				"http://example.com:8080/",
				"mailto:admin@example.com",
				"javascript:void(0)",
				"/ok",
			},
			"http://example.com/ok": {},
		})
		spider := newTestSpider(f)

		result, err := spider.Crawl(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		visited := result.Visited()
		if len(visited) != 2 {
			t.Fatalf("expected 2 visited URLs, got %v", visited)
		}
		for _, u := range visited {
			if !strings.HasPrefix(u, "http://example.com/") {
				t.Errorf("out of scope URL visited: %s", u)
			}
		}
		if root := result.Page("http://example.com/"); root.OutboundLinks != 6 || root.EnqueuedLinks != 1 {
			t.Errorf("unexpected seed counters: %+v", root)
		}
	})

	t.Run("follows subdomains when enabled", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(map[string][]string{
			"http://example.com/":      {"http://blog.example.com/", "https://other.com/"},
			"http://blog.example.com/": {},
		})
		spider := newTestSpider(f, WithSubdomains(true))

		result, err := spider.Crawl(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Page("http://blog.example.com/") == nil {
			t.Errorf("expected subdomain in visited set, got %v", result.Visited())
		}
		if len(result.Pages) != 2 {
			t.Errorf("expected 2 visited URLs, got %v", result.Visited())
		}
	})

	t.Run("records non-2xx responses and continues", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(map[string][]string{
			"http://example.com/":  {"/b", "/c"},
			"http://example.com/c": {},
		})
		f.status["http://example.com/b"] = http.StatusInternalServerError
		spider := newTestSpider(f)

		result, err := spider.Crawl(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		b := result.Page("http://example.com/b")
		if b == nil || b.StatusCode != http.StatusInternalServerError {
			t.Fatalf("unexpected result for /b: %+v", b)
		}
		if !strings.Contains(b.ErrorMessage(), ErrUnexpectedStatus.Error()) {
			t.Errorf("expected unexpected status error, got %q", b.ErrorMessage())
		}
		if c := result.Page("http://example.com/c"); c == nil || c.Failed() {
			t.Errorf("expected /c to succeed, got %+v", c)
		}
	})

	t.Run("recovers a panicking fetcher", func(t *testing.T) {
		t.Parallel()

		f := FetcherFunc(func(_ context.Context, u urlnorm.URL) ([]byte, int, error) {
			if u == "http://example.com/boom" {
				panic("fetcher exploded")
			}
			return []byte(`<a href="/boom">x</a><a href="/fine">y</a>`), 200, nil
		})
		spider := newTestSpider(f, WithMaxWorkers(2))

		result, err := spider.Crawl(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		boom := result.Page("http://example.com/boom")
		if boom == nil || !strings.Contains(boom.ErrorMessage(), ErrTaskPanic.Error()) {
			t.Fatalf("expected panic to be recorded, got %+v", boom)
		}
		if fine := result.Page("http://example.com/fine"); fine == nil || !fine.Fetched || fine.Failed() {
			t.Errorf("expected /fine to be crawled, got %+v", fine)
		}
		if result.Reason != model.StopReasonExhausted {
			t.Errorf("expected reason exhausted, got %s", result.Reason)
		}
	})

	t.Run("deadline produces a partial result", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(nil)
		f.block = true
		spider := newTestSpider(f, WithDeadline(50*time.Millisecond))

		start := time.Now()
		result, err := spider.Crawl(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("deadline should not be an error: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Errorf("crawl did not stop promptly: %v", elapsed)
		}

		if !result.Partial {
			t.Error("expected partial result")
		}
		if result.Reason != model.StopReasonDeadline {
			t.Errorf("expected reason deadline, got %s", result.Reason)
		}
		if len(result.Pages) != 1 || !result.Pages[0].Failed() {
			t.Errorf("expected the interrupted seed to carry an error: %+v", result.Pages)
		}
	})

	t.Run("deadline during draining still marks the result partial", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(map[string][]string{
			"http://example.com/": {"/slow"},
		})
		f.hang["http://example.com/slow"] = true
		spider := newTestSpider(f,
			WithMaxPages(2),
			WithRequestTimeout(0),
			WithDeadline(50*time.Millisecond),
		)

		result, err := spider.Crawl(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Partial || result.Reason != model.StopReasonDeadline {
			t.Errorf("expected partial deadline result, got partial=%v reason=%s", result.Partial, result.Reason)
		}
		slow := result.Page("http://example.com/slow")
		if slow == nil || !slow.Failed() {
			t.Errorf("expected the cut off fetch to carry an error: %+v", slow)
		}
	})

	t.Run("request timeout bounds a hung fetch", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(nil)
		f.block = true
		spider := newTestSpider(f, WithRequestTimeout(20*time.Millisecond))

		result, err := spider.Crawl(context.Background(), "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Partial {
			t.Error("per-request timeout should not make the crawl partial")
		}
		if !strings.Contains(result.Pages[0].ErrorMessage(), "deadline exceeded") {
			t.Errorf("expected timeout error, got %q", result.Pages[0].ErrorMessage())
		}
	})

	t.Run("cancellation produces a partial result", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(nil)
		f.block = true
		spider := newTestSpider(f)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		result, err := spider.Crawl(ctx, "http://example.com/")
		if err != nil {
			t.Fatalf("cancellation should not be an error: %v", err)
		}
		if !result.Partial || result.Reason != model.StopReasonCancelled {
			t.Errorf("expected partial cancelled result, got partial=%v reason=%s", result.Partial, result.Reason)
		}
	})

	t.Run("already cancelled context fetches nothing", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(map[string][]string{"http://example.com/": {}})
		spider := newTestSpider(f)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := spider.Crawl(ctx, "http://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := len(f.callLog()); got != 0 {
			t.Errorf("expected no fetches, got %d", got)
		}
		if len(result.Pages) != 1 || result.Pages[0].Fetched {
			t.Errorf("expected the seed to be listed as unfetched: %+v", result.Pages)
		}
		if result.Reason != model.StopReasonCancelled {
			t.Errorf("expected reason cancelled, got %s", result.Reason)
		}
	})

	t.Run("never filters the start URL", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(map[string][]string{
			"http://example.com/admin/start": {"/admin/users", "/public"},
			"http://example.com/public":      {},
		})
		spider := newTestSpider(f, WithIgnorePatterns([]string{"/admin/*"}))

		result, err := spider.Crawl(context.Background(), "http://example.com/admin/start")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		visited := result.Visited()
		if len(visited) != 2 || visited[0] != "http://example.com/admin/start" || visited[1] != "http://example.com/public" {
			t.Errorf("unexpected visited set: %v", visited)
		}
	})

	t.Run("repeated crawls are independent", func(t *testing.T) {
		t.Parallel()

		f := newGraphFetcher(map[string][]string{
			"http://example.com/":  {"/a"},
			"http://example.com/a": {},
		})
		spider := newTestSpider(f)

		for i := range 3 {
			result, err := spider.Crawl(context.Background(), "http://example.com/")
			if err != nil {
				t.Fatalf("crawl %d: unexpected error: %v", i, err)
			}
			if len(result.Pages) != 2 || result.FetchedCount() != 2 {
				t.Errorf("crawl %d: unexpected result: %+v", i, result.Pages)
			}
		}
	})
}

func TestSpiderCrawlConfigErrors(t *testing.T) {
	t.Parallel()

	f := newGraphFetcher(nil)
	tests := []struct {
		name     string
		opts     []SpiderOption
		startURL string
		wantErr  error
	}{
		{"zero max pages", []SpiderOption{WithMaxPages(0)}, "http://example.com/", ErrInvalidMaxPages},
		{"zero workers", []SpiderOption{WithMaxWorkers(0)}, "http://example.com/", ErrInvalidMaxWorkers},
		{"relative start URL", nil, "/just/a/path", ErrInvalidStartURL},
		{"unsupported scheme", nil, "ftp://example.com/", ErrInvalidStartURL},
		{"unparseable start URL", nil, "http://[::1", ErrInvalidStartURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			spider := newTestSpider(f, tt.opts...)
			result, err := spider.Crawl(context.Background(), tt.startURL)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if result != nil {
				t.Errorf("expected nil result, got %+v", result)
			}
		})
	}
}

func TestSpiderStateHook(t *testing.T) {
	t.Parallel()

	var (
		mu          sync.Mutex
		transitions []string
	)
	hook := func(startURL string, from, to State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, fmt.Sprintf("%s:%s->%s", startURL, from, to))
	}

	f := newGraphFetcher(map[string][]string{"http://example.com/": {}})
	spider := newTestSpider(f, WithStateHook(hook))

	if _, err := spider.Crawl(context.Background(), "http://example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"http://example.com/:idle->running",
		"http://example.com/:running->draining",
		"http://example.com/:draining->done",
	}
	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestSpiderRecorder(t *testing.T) {
	t.Parallel()

	f := newGraphFetcher(map[string][]string{
		"http://example.com/":  {"/a", "/b"},
		"http://example.com/a": {},
	})
	rec := &countingRecorder{}
	spider := newTestSpider(f, WithRecorder(rec), WithMaxWorkers(3))

	result, err := spider.Crawl(context.Background(), "http://example.com/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.started != 3 || rec.finished != 3 {
		t.Errorf("expected 3 started and finished, got %d and %d", rec.started, rec.finished)
	}
	if rec.failed != result.ErrorCount() {
		t.Errorf("expected %d failures, got %d", result.ErrorCount(), rec.failed)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := map[State]string{
		StateIdle:     "idle",
		StateRunning:  "running",
		StateDraining: "draining",
		StateDone:     "done",
		State(42):     "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestSpiderWithHTTPFetcher(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/page1">1</a><a href="page2/">2</a><a href="/missing">x</a></body></html>`)) //nolint:errcheck
	})
	mux.HandleFunc("/page1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/">home</a><a href="/page2">2</a></body></html>`)) //nolint:errcheck
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>leaf</body></html>`)) //nolint:errcheck
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	f, err := fetcher.NewHTTPFetcher(fetcher.WithClient(server.Client()))
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	spider := newTestSpider(f, WithMaxWorkers(2))
	result, err := spider.Crawl(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Pages) != 4 {
		t.Fatalf("expected 4 visited URLs, got %v", result.Visited())
	}
	if result.ErrorCount() != 1 {
		t.Errorf("expected 1 error for /missing, got %d", result.ErrorCount())
	}
	missing := result.Page(server.URL + "/missing")
	if missing == nil || missing.StatusCode != http.StatusNotFound {
		t.Errorf("unexpected result for /missing: %+v", missing)
	}
	if root := result.Pages[0]; root.ContentHash == "" {
		t.Error("expected content hash for the seed")
	}
}

func TestSpiderResolvesLinksAgainstServedURL(t *testing.T) {
	t.Parallel()

	offsite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<a href="/elsewhere">x</a>`)) //nolint:errcheck
	}))
	defer offsite.Close()

	html := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body)) //nolint:errcheck
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			html(w, `<a href="/old">old</a><a href="/away">away</a><a href="docs/ref/">ref</a>`)
		case "/old":
			http.Redirect(w, r, "/docs/guide/", http.StatusMovedPermanently)
		case "/docs/guide/":
			html(w, `<a href="intro.html">intro</a>`)
		case "/docs/guide/intro.html":
			html(w, `<p>intro</p>`)
		case "/docs/ref":
			http.Redirect(w, r, "/docs/ref/", http.StatusMovedPermanently)
		case "/docs/ref/":
			html(w, `<a href="api.html">api</a>`)
		case "/docs/ref/api.html":
			html(w, `<p>api</p>`)
		case "/away":
			http.Redirect(w, r, offsite.URL+"/", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f, err := fetcher.NewHTTPFetcher(fetcher.WithClient(server.Client()))
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	result, err := newTestSpider(f, WithMaxWorkers(2)).Crawl(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ErrorCount() != 0 {
		for _, p := range result.Pages {
			if p.Failed() {
				t.Errorf("%s failed: %s", p.URL, p.ErrorMessage())
			}
		}
	}

	for _, path := range []string{"/docs/guide/intro.html", "/docs/ref/api.html"} {
		page := result.Page(server.URL + path)
		if page == nil || page.StatusCode != http.StatusOK {
			t.Errorf("expected %s to be crawled with 200, got %+v", path, page)
		}
	}

	old := result.Page(server.URL + "/old")
	if old == nil || old.RedirectedTo != server.URL+"/docs/guide" {
		t.Errorf("expected /old to record its redirect target, got %+v", old)
	}

	away := result.Page(server.URL + "/away")
	if away == nil || away.EnqueuedLinks != 0 || away.OutboundLinks != 0 {
		t.Errorf("expected no links from an off-site redirect, got %+v", away)
	}
	if result.Page(server.URL+"/elsewhere") != nil {
		t.Error("links of an off-site page must not be followed")
	}
}
