package crawler

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/crawlqueue/internal/queue"
)

// SelectorExtractor returns an Extract hook that maps each field to the
// trimmed text of every element matching its CSS selector.
func SelectorExtractor(fields map[string]string) func(context.Context, *goquery.Document, queue.JobRecord) (any, error) {
	return func(_ context.Context, doc *goquery.Document, _ queue.JobRecord) (any, error) {
		data := make(map[string][]string, len(fields))
		for field, selector := range fields {
			values := []string{}
			doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
				if text := strings.TrimSpace(s.Text()); text != "" {
					values = append(values, text)
				}
			})
			data[field] = values
		}
		return data, nil
	}
}

// StopAfter returns an After hook that stops the queue once at least n jobs are done.
func StopAfter(n int) func(context.Context, Result, queue.Snapshot, StopFunc) error {
	return func(ctx context.Context, _ Result, snap queue.Snapshot, stop StopFunc) error {
		if n <= 0 || len(snap.Queue.Done) < n {
			return nil
		}
		return stop(ctx)
	}
}
