package model

// StopReason describes why a crawl stopped.
type StopReason string

// Stop reason constants.
const (
	// StopReasonUnknown is the zero value, used before a crawl finishes.
	StopReasonUnknown StopReason = ""
	// StopReasonExhausted means every reachable in-scope URL was processed.
	StopReasonExhausted StopReason = "exhausted"
	// StopReasonBudget means the page budget was spent.
	StopReasonBudget StopReason = "budget"
	// StopReasonDeadline means the global deadline expired.
	StopReasonDeadline StopReason = "deadline"
	// StopReasonCancelled means the caller cancelled the crawl.
	StopReasonCancelled StopReason = "cancelled"
)

// String returns the string representation of the StopReason.
func (r StopReason) String() string {
	if r == StopReasonUnknown {
		return "unknown"
	}
	return string(r)
}

// IsValid returns true if this is a known stop reason.
func (r StopReason) IsValid() bool {
	switch r {
	case StopReasonExhausted, StopReasonBudget, StopReasonDeadline, StopReasonCancelled:
		return true
	default:
		return false
	}
}

// IsPartial reports whether a crawl stopping for this reason may have left
// discovered URLs unprocessed because of a time limit.
func (r StopReason) IsPartial() bool {
	return r == StopReasonDeadline || r == StopReasonCancelled
}

// ParseStopReason converts a string to StopReason.
func ParseStopReason(s string) StopReason {
	switch s {
	case "exhausted":
		return StopReasonExhausted
	case "budget":
		return StopReasonBudget
	case "deadline":
		return StopReasonDeadline
	case "cancelled", "canceled":
		return StopReasonCancelled
	default:
		return StopReasonUnknown
	}
}
