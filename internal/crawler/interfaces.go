package crawler

import (
	"context"

	"github.com/JakeFAU/crawlqueue/internal/queue"
)

// QueueStore is the shared queue state machine. *queue.Store implements it.
type QueueStore interface {
	Register(ctx context.Context, cfg queue.Config, seedURL string) (queue.Registration, error)
	Deregister(ctx context.Context, name string, job queue.JobRecord) error
	Add(ctx context.Context, name string, parent queue.JobRecord, urls []string) (queue.Snapshot, error)
	Stop(ctx context.Context, name string) error
	Snapshot(ctx context.Context, name string) (queue.Snapshot, error)
}

// Browser fetches one page. Fetch-layer failures, including non-2xx responses,
// are reported as *BrowserError.
type Browser interface {
	Fetch(ctx context.Context, request FetchRequest) (Page, error)
}

// Connector opens the store and browser used by a single invocation.
type Connector interface {
	Connect(ctx context.Context) (*Session, error)
}

// Session is a scoped pair of store and browser handles.
type Session struct {
	Store   QueueStore
	Browser Browser
	// Release frees whatever Connect acquired. It may be nil.
	Release func() error
}

// Close runs Release once.
func (s *Session) Close() error {
	if s == nil || s.Release == nil {
		return nil
	}
	release := s.Release
	s.Release = nil
	return release()
}
