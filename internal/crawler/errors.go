package crawler

import (
	"fmt"
	"strings"
)

// BrowserError is a fetch-layer failure. It ends the current unit of work
// without affecting the queue.
type BrowserError struct {
	URL      string
	Response Response
	Err      error
}

func (e *BrowserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %d %s", e.URL, e.Response.Status, e.Response.StatusText)
}

func (e *BrowserError) Unwrap() error {
	return e.Err
}

// GeneralJobError wraps an unexpected failure with the URL that was in flight.
type GeneralJobError struct {
	URL string
	Err error
}

func (e *GeneralJobError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("crawl job failed: %v", e.Err)
	}
	return fmt.Sprintf("crawl job %s failed: %v", e.URL, e.Err)
}

func (e *GeneralJobError) Unwrap() error {
	return e.Err
}

// ValidationError lists every structural problem found in a JobSpec.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid job spec: " + strings.Join(e.Problems, "; ")
}
