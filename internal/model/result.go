package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// PageResult is the outcome for one URL in the visited set.
//
// URLs that were enqueued but never dequeued, because the crawl stopped on
// its budget or deadline first, still get a PageResult with Fetched=false.
type PageResult struct {
	// URL is the normalized URL.
	URL string `json:"url"`

	// Seq is the discovery order, 0 for the start URL.
	Seq int `json:"seq"`

	// Fetched is true if a worker processed this URL.
	Fetched bool `json:"fetched"`

	// RedirectedTo is the normalized URL the response was served from when
	// the fetch was redirected away from URL.
	RedirectedTo string `json:"redirected_to,omitempty"`

	// StatusCode is the HTTP status code, or 0 if no response was received.
	StatusCode int `json:"status_code,omitempty"`

	// OutboundLinks is the number of raw links extracted from the page,
	// before normalization and deduplication.
	OutboundLinks int `json:"outbound_links"`

	// EnqueuedLinks is the number of links this page added to the frontier.
	EnqueuedLinks int `json:"enqueued_links"`

	// Error is the fetch or extraction error message, nil on success.
	Error *string `json:"error,omitempty"`

	// Duration is the time spent processing the page.
	Duration time.Duration `json:"duration"`

	// ContentHash is the SHA-256 of the response body.
	// Empty when no body was read.
	ContentHash string `json:"content_hash,omitempty"`
}

// Failed returns true if the page was processed and recorded an error.
func (p *PageResult) Failed() bool {
	return p.Error != nil
}

// SetError records err as the page error. A nil err clears it.
func (p *PageResult) SetError(err error) {
	if err == nil {
		p.Error = nil
		return
	}
	msg := err.Error()
	p.Error = &msg
}

// ErrorMessage returns the error message or an empty string.
func (p *PageResult) ErrorMessage() string {
	if p.Error == nil {
		return ""
	}
	return *p.Error
}

// HashContent returns the hex encoded SHA-256 of body.
// An empty body produces an empty hash.
func HashContent(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CrawlResult is the final output of one crawl.
// It is created once when the crawl finishes and is read-only afterwards.
type CrawlResult struct {
	// StartURL is the normalized seed URL.
	StartURL string `json:"start_url"`

	// BaseDomain is the authority that bounds the crawl.
	BaseDomain string `json:"base_domain"`

	// Pages holds every visited URL in discovery order.
	Pages []PageResult `json:"pages"`

	// Partial is true if the crawl stopped on a deadline or cancellation.
	Partial bool `json:"partial"`

	// Reason is why the crawl stopped.
	Reason StopReason `json:"reason"`

	// StartedAt is when the crawl started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last worker exited.
	FinishedAt time.Time `json:"finished_at"`
}

// Visited returns the visited URLs in discovery order.
func (r *CrawlResult) Visited() []string {
	urls := make([]string, len(r.Pages))
	for i := range r.Pages {
		urls[i] = r.Pages[i].URL
	}
	return urls
}

// Page returns the result for url, or nil if url was not visited.
func (r *CrawlResult) Page(url string) *PageResult {
	for i := range r.Pages {
		if r.Pages[i].URL == url {
			return &r.Pages[i]
		}
	}
	return nil
}

// FetchedCount returns the number of pages a worker processed.
func (r *CrawlResult) FetchedCount() int {
	n := 0
	for i := range r.Pages {
		if r.Pages[i].Fetched {
			n++
		}
	}
	return n
}

// ErrorCount returns the number of processed pages that failed.
func (r *CrawlResult) ErrorCount() int {
	n := 0
	for i := range r.Pages {
		if r.Pages[i].Failed() {
			n++
		}
	}
	return n
}

// SuccessCount returns the number of processed pages without an error.
func (r *CrawlResult) SuccessCount() int {
	return r.FetchedCount() - r.ErrorCount()
}

// UnfetchedCount returns the number of visited URLs no worker processed.
func (r *CrawlResult) UnfetchedCount() int {
	return len(r.Pages) - r.FetchedCount()
}

// Elapsed returns the wall-clock duration of the crawl.
func (r *CrawlResult) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
