package crawler

import "errors"

// Sentinel errors for crawl configuration and per-page failures.
var (
	// ErrInvalidStartURL is returned when the start URL cannot seed a crawl.
	ErrInvalidStartURL = errors.New("invalid start URL")

	// ErrInvalidMaxPages is returned when the page budget is less than 1.
	ErrInvalidMaxPages = errors.New("max pages must be at least 1")

	// ErrInvalidMaxWorkers is returned when the worker count is less than 1.
	ErrInvalidMaxWorkers = errors.New("max workers must be at least 1")

	// ErrUnexpectedStatus is recorded for responses outside the 2xx range.
	ErrUnexpectedStatus = errors.New("unexpected status code")

	// ErrTaskPanic is recorded when a Fetcher or Extractor panics.
	ErrTaskPanic = errors.New("page processing panicked")
)
