package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/nao1215/pcrawl/internal/urlnorm"
	"golang.org/x/time/rate"
)

// Fetcher is the interface RateLimited wraps.
// It matches crawler.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, u urlnorm.URL) ([]byte, int, error)
}

// ResolvingFetcher is a Fetcher that also returns the URL a response was
// served from after redirects. It matches crawler.ResolvingFetcher.
type ResolvingFetcher interface {
	Fetcher
	FetchResolved(ctx context.Context, u urlnorm.URL) ([]byte, int, string, error)
}

// RateLimited spaces out requests to the same host.
// Each host gets its own token bucket refilled once per delay with a burst
// of one, so concurrent workers hitting one host are serialized to at most
// one request per delay while different hosts proceed independently.
type RateLimited struct {
	next  Fetcher
	delay time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimited wraps next with a per-host delay.
// A non-positive delay disables limiting.
func NewRateLimited(next Fetcher, delay time.Duration) *RateLimited {
	return &RateLimited{
		next:     next,
		delay:    delay,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Fetch waits for the host's limiter, then delegates to the wrapped fetcher.
// It returns the context error if ctx ends while waiting.
func (r *RateLimited) Fetch(ctx context.Context, u urlnorm.URL) ([]byte, int, error) {
	if r.delay > 0 {
		if err := r.limiter(u.Host()).Wait(ctx); err != nil {
			return nil, 0, err
		}
	}
	return r.next.Fetch(ctx, u)
}

// FetchResolved waits like Fetch. If the wrapped fetcher reports the final
// URL of the response it is passed through, otherwise the request URL is
// returned.
func (r *RateLimited) FetchResolved(ctx context.Context, u urlnorm.URL) ([]byte, int, string, error) {
	next, ok := r.next.(ResolvingFetcher)
	if !ok {
		body, status, err := r.Fetch(ctx, u)
		return body, status, u.String(), err
	}
	if r.delay > 0 {
		if err := r.limiter(u.Host()).Wait(ctx); err != nil {
			return nil, 0, "", err
		}
	}
	return next.FetchResolved(ctx, u)
}

// limiter returns the limiter for host, creating it on first use.
func (r *RateLimited) limiter(host string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(r.delay), 1)
		r.limiters[host] = l
	}
	return l
}
