package report

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/nao1215/pcrawl/internal/model"
)

const (
	// maxTopErrors bounds Summary.TopErrors.
	maxTopErrors = 5

	msRound = time.Millisecond
)

// Summary is the aggregated view of a CrawlResult.
type Summary struct {
	StartURL   string           `json:"start_url"`
	Reason     model.StopReason `json:"reason"`
	Partial    bool             `json:"partial"`
	StartedAt  time.Time        `json:"started_at"`
	Elapsed    time.Duration    `json:"elapsed"`
	Visited    int              `json:"visited"`
	Fetched    int              `json:"fetched"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Unfetched  int              `json:"unfetched"`
	TotalLinks int              `json:"total_links"`

	// StatusClasses counts fetched pages by status class ("2xx", "4xx", ...).
	// Pages without a response are counted under "none".
	StatusClasses map[string]int `json:"status_classes"`

	// TopErrors lists the most frequent error messages, most frequent first.
	TopErrors []ErrorCount `json:"top_errors,omitempty"`
}

// ErrorCount is an error message and how many pages reported it.
type ErrorCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// NewSummary aggregates result.
func NewSummary(result *model.CrawlResult) *Summary {
	s := &Summary{
		StartURL:      result.StartURL,
		Reason:        result.Reason,
		Partial:       result.Partial,
		StartedAt:     result.StartedAt,
		Elapsed:       result.Elapsed(),
		Visited:       len(result.Pages),
		StatusClasses: make(map[string]int),
	}

	errs := make(map[string]int)
	for i := range result.Pages {
		p := &result.Pages[i]
		if !p.Fetched {
			s.Unfetched++
			continue
		}
		s.Fetched++
		s.TotalLinks += p.OutboundLinks
		s.StatusClasses[statusClass(p.StatusCode)]++
		if p.Failed() {
			s.Failed++
			errs[p.ErrorMessage()]++
		} else {
			s.Succeeded++
		}
	}

	for msg, n := range errs {
		s.TopErrors = append(s.TopErrors, ErrorCount{Message: msg, Count: n})
	}
	slices.SortFunc(s.TopErrors, func(a, b ErrorCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Message, b.Message)
	})
	if len(s.TopErrors) > maxTopErrors {
		s.TopErrors = s.TopErrors[:maxTopErrors]
	}
	return s
}

// Status returns a one-line status for the crawl.
func (s *Summary) Status() string {
	switch {
	case s.Partial:
		return "partial (" + s.Reason.String() + ")"
	case s.Reason == model.StopReasonBudget:
		return "stopped at page budget"
	default:
		return "complete"
	}
}

func statusClass(code int) string {
	switch {
	case code <= 0:
		return "none"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// sortedClasses returns the keys of StatusClasses in order.
func (s *Summary) sortedClasses() []string {
	return slices.Sorted(maps.Keys(s.StatusClasses))
}
