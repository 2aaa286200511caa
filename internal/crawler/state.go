package crawler

// State is the lifecycle phase of a single crawl.
type State int

const (
	// StateIdle is the phase before the frontier is seeded.
	StateIdle State = iota
	// StateRunning is the phase in which workers drain the frontier.
	StateRunning
	// StateDraining is the phase in which the coordinator waits for workers
	// to return after a stop condition was observed.
	StateDraining
	// StateDone is the terminal phase. The result has been built.
	StateDone
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// StateHook is called on every state transition of a crawl.
// startURL identifies the crawl when one Spider runs several at once.
type StateHook func(startURL string, from, to State)
