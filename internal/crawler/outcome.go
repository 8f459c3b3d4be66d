package crawler

import "github.com/JakeFAU/crawlqueue/internal/queue"

// OutcomeKind tags how a worker invocation ended.
type OutcomeKind int

const (
	// OutcomeDone means the page was fetched and the frontier updated.
	OutcomeDone OutcomeKind = iota
	// OutcomeTransient means this worker gave up; the queue is still running.
	OutcomeTransient
	// OutcomeTerminal means the queue has been stopped.
	OutcomeTerminal
	// OutcomeFailed means the fetch failed; the job was moved to done without a result.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDone:
		return "done"
	case OutcomeTransient:
		return "transient"
	case OutcomeTerminal:
		return "terminal"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the value returned by Execute for every expected ending.
type Outcome struct {
	Kind OutcomeKind
	Job  queue.JobRecord
	// Result is set for OutcomeDone. For OutcomeFailed it carries the failed response, if any.
	Result Result
	// Err is the *queue.QueueError, *queue.QueueEndError or *BrowserError behind a non-Done outcome.
	Err error
}
