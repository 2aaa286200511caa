package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nao1215/pcrawl/internal/model"
	"github.com/nao1215/pcrawl/internal/urlnorm"
)

// errConnRefused simulates a transport error.
var errConnRefused = errors.New("connection refused")

// graphFetcher serves a fixed link graph and records every call.
// Pages are keyed by normalized URL; their bodies are HTML anchor lists.
type graphFetcher struct {
	mu    sync.Mutex
	calls []urlnorm.URL

	// links maps a URL to the hrefs on that page.
	links map[string][]string

	// fail maps a URL to the error its fetch returns.
	fail map[string]error

	// status maps a URL to a non-200 status code.
	status map[string]int

	// block makes every fetch wait for ctx to be done.
	block bool

	// hang makes fetches of the listed URLs wait for ctx to be done.
	hang map[string]bool
}

func newGraphFetcher(links map[string][]string) *graphFetcher {
	return &graphFetcher{
		links:  links,
		fail:   make(map[string]error),
		status: make(map[string]int),
		hang:   make(map[string]bool),
	}
}

func (f *graphFetcher) Fetch(ctx context.Context, u urlnorm.URL) ([]byte, int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, u)
	f.mu.Unlock()

	if f.block || f.hang[u.String()] {
		<-ctx.Done()
		return nil, 0, ctx.Err()
	}
	if err, ok := f.fail[u.String()]; ok {
		return nil, 0, err
	}
	if code, ok := f.status[u.String()]; ok {
		return nil, code, nil
	}

	hrefs, ok := f.links[u.String()]
	if !ok {
		return nil, 404, nil
	}

	var body strings.Builder
	body.WriteString("<html><body>")
	for _, href := range hrefs {
		fmt.Fprintf(&body, `<a href="%s">link</a>`, href)
	}
	body.WriteString("</body></html>")
	return []byte(body.String()), 200, nil
}

// callLog returns a copy of the fetch log.
func (f *graphFetcher) callLog() []urlnorm.URL {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]urlnorm.URL, len(f.calls))
	copy(out, f.calls)
	return out
}

// countingRecorder counts Recorder calls.
type countingRecorder struct {
	mu       sync.Mutex
	started  int
	finished int
	failed   int
}

func (r *countingRecorder) PageStarted(urlnorm.URL) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *countingRecorder) PageFinished(page *model.PageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
	if page.Failed() {
		r.failed++
	}
}
