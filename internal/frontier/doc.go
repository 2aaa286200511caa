// Package frontier implements the shared work queue of a crawl.
//
// A Frontier owns three pieces of state: the pending queue of URLs waiting
// for a worker, the visited set of every URL ever enqueued, and the count of
// tasks currently held by workers. All of them are guarded by one mutex and
// only change through the Frontier methods, so check-then-act races such as
// two workers enqueueing the same URL cannot happen.
//
// A URL joins the visited set when it is enqueued, not when it is fetched.
// The pending queue is therefore always a subset of the visited set, and the
// visited set only grows for the lifetime of a Frontier.
//
// The crawl is complete when the frontier is exhausted: nothing is pending
// and no task is in flight. Waiters use Changed to sleep until the state
// moves instead of polling.
package frontier
