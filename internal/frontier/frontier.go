package frontier

import (
	"sync"

	"github.com/nao1215/pcrawl/internal/urlnorm"
)

// compactThreshold is the number of consumed queue slots after which the
// pending slice is compacted.
const compactThreshold = 1024

// Task is one URL to visit.
type Task struct {
	// URL is the normalized URL to fetch.
	URL urlnorm.URL

	// Seq is the discovery order of the URL, starting at 0 for the seed.
	Seq int
}

// Stats is a point-in-time view of the frontier counters.
type Stats struct {
	// Visited is the number of distinct URLs ever enqueued.
	Visited int

	// Pending is the number of tasks waiting for a worker.
	Pending int

	// InFlight is the number of tasks dequeued but not yet marked done.
	InFlight int

	// Dequeued is the number of tasks handed out so far.
	Dequeued int
}

// Frontier is a concurrency-safe FIFO queue with deduplication.
type Frontier struct {
	mu sync.Mutex

	// pending holds queued tasks; pending[head:] are still waiting.
	pending []Task
	head    int

	// visited maps every enqueued URL to its discovery sequence.
	visited map[urlnorm.URL]int

	// order lists visited URLs in discovery order.
	order []urlnorm.URL

	inFlight int
	dequeued int

	// limit caps the number of tasks Dequeue hands out. Zero means no limit.
	limit int

	// changed is closed and replaced whenever work becomes available or a
	// task completes.
	changed chan struct{}
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithLimit caps the total number of tasks Dequeue will ever return.
// Once the cap is reached Dequeue reports no task even if URLs are pending.
func WithLimit(n int) Option {
	return func(f *Frontier) {
		if n > 0 {
			f.limit = n
		}
	}
}

// New creates an empty Frontier.
func New(opts ...Option) *Frontier {
	f := &Frontier{
		visited: make(map[urlnorm.URL]int),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// TryEnqueue adds u to the visited set and the pending queue if it has not
// been seen before. It reports whether u was added.
func (f *Frontier) TryEnqueue(u urlnorm.URL) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, seen := f.visited[u]; seen {
		return false
	}

	seq := len(f.order)
	f.visited[u] = seq
	f.order = append(f.order, u)
	f.pending = append(f.pending, Task{URL: u, Seq: seq})
	f.notifyLocked()
	return true
}

// Dequeue removes and returns the oldest pending task and counts it as in
// flight. It returns ok=false when nothing is pending or the limit has been
// reached. Every successful Dequeue must be paired with one MarkDone.
func (f *Frontier) Dequeue() (Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.limitReachedLocked() || f.pendingLenLocked() == 0 {
		return Task{}, false
	}

	task := f.pending[f.head]
	f.pending[f.head] = Task{}
	f.head++
	f.compactLocked()

	f.inFlight++
	f.dequeued++
	if f.limitReachedLocked() {
		f.notifyLocked()
	}
	return task, true
}

// MarkDone records the completion of a dequeued task.
// It panics if no task is in flight, because an unmatched MarkDone would
// make the frontier report completion while work is still running.
func (f *Frontier) MarkDone() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inFlight == 0 {
		panic("frontier: MarkDone called without a matching Dequeue")
	}
	f.inFlight--
	f.notifyLocked()
}

// IsExhausted reports whether nothing is pending and no task is in flight.
// Once true it stays true, since only in-flight tasks enqueue new URLs.
func (f *Frontier) IsExhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingLenLocked() == 0 && f.inFlight == 0
}

// LimitReached reports whether Dequeue has handed out as many tasks as the
// configured limit allows.
func (f *Frontier) LimitReached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limitReachedLocked()
}

// Snapshot returns a copy of the visited set in discovery order.
func (f *Frontier) Snapshot() []urlnorm.URL {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]urlnorm.URL, len(f.order))
	copy(out, f.order)
	return out
}

// Stats returns the current counters.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Visited:  len(f.order),
		Pending:  f.pendingLenLocked(),
		InFlight: f.inFlight,
		Dequeued: f.dequeued,
	}
}

// Changed returns a channel that is closed the next time the frontier
// state changes: a URL is enqueued, a task completes, or the limit is
// reached. Callers must fetch the channel before inspecting the state they
// want to wait on, otherwise a change in between could be missed.
func (f *Frontier) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

func (f *Frontier) pendingLenLocked() int {
	return len(f.pending) - f.head
}

func (f *Frontier) limitReachedLocked() bool {
	return f.limit > 0 && f.dequeued >= f.limit
}

func (f *Frontier) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}

// compactLocked releases consumed queue slots.
func (f *Frontier) compactLocked() {
	switch {
	case f.head == len(f.pending):
		f.pending = f.pending[:0]
		f.head = 0
	case f.head >= compactThreshold && f.head*2 >= len(f.pending):
		n := copy(f.pending, f.pending[f.head:])
		f.pending = f.pending[:n]
		f.head = 0
	}
}
