package crawler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/crawlqueue/internal/linkfilter"
	"github.com/JakeFAU/crawlqueue/internal/queue"
)

// StopFunc marks the queue INACTIVE.
type StopFunc func(ctx context.Context) error

// Hooks are optional caller callbacks. Nil fields are skipped.
type Hooks struct {
	// BeforeAll runs once per queue, on the invocation that admitted the seed.
	BeforeAll func(ctx context.Context, req *FetchRequest, snap queue.Snapshot, job queue.JobRecord) error
	// Before runs on every invocation, right before the fetch.
	Before func(ctx context.Context, req *FetchRequest, snap queue.Snapshot, job queue.JobRecord) error
	// Extract turns the fetched document into Result.Data.
	Extract func(ctx context.Context, doc *goquery.Document, job queue.JobRecord) (any, error)
	// After sees the result and the post-update snapshot. Calling stop ends the whole crawl.
	After func(ctx context.Context, result Result, snap queue.Snapshot, stop StopFunc) error
}

// JobSpec describes a crawl. The same spec is handed to every worker invocation.
type JobSpec struct {
	URL        string
	Config     queue.Config
	Filter     *linkfilter.Filter
	Navigation Navigation
	Headers    http.Header
	// Start launches one more invocation of Execute. It must not block.
	Start func()
	Hooks Hooks
}

// Validate reports every missing or malformed field at once.
func (s JobSpec) Validate() error {
	problems := s.validateTarget()
	if s.Config.Name == "" {
		problems = append(problems, "config.name is required")
	}
	if s.Config.ConcurrencyLimit <= 0 {
		problems = append(problems, "config.concurrencyLimit must be > 0")
	}
	if s.Config.DepthLimit <= 0 {
		problems = append(problems, "config.depthLimit must be > 0")
	}
	if s.Config.Delay < 0 {
		problems = append(problems, "config.delay must be >= 0")
	}
	if s.Start == nil {
		problems = append(problems, "start callback is required")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (s JobSpec) validateTarget() []string {
	if s.URL == "" {
		return []string{"url is required"}
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []string{"url must be absolute"}
	}
	return nil
}
