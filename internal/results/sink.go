// Package results stores and reports the results produced by a crawl.
package results

import (
	"context"
	"errors"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
)

// Sink persists completed results.
type Sink interface {
	Write(ctx context.Context, result crawler.Result) error
	Close() error
}

// Multi fans every result out to all of its sinks.
type Multi []Sink

// Write writes to every sink and joins their errors.
func (m Multi) Write(ctx context.Context, result crawler.Result) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Write(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options picks which parts of a result end up in a report.
type Options struct {
	// HTML reduces the report to the raw response body.
	HTML     bool
	Links    bool
	Cookies  bool
	Response bool
}

// Report is the trimmed view of a result used for printing and exports.
type Report struct {
	URL      string            `json:"url"`
	Data     any               `json:"data"`
	Response *crawler.Response `json:"response,omitempty"`
	Cookies  []crawler.Cookie  `json:"cookies,omitempty"`
	Links    []string          `json:"links,omitempty"`
}

// Project trims result according to opts. With opts.HTML set it returns the
// response body as a string, otherwise a Report. The body never appears in a Report.
func Project(result crawler.Result, opts Options) any {
	if opts.HTML {
		return result.Response.Body
	}
	report := Report{
		URL:  result.Response.URL,
		Data: result.Data,
	}
	if opts.Response {
		response := result.Response
		response.Body = ""
		report.Response = &response
	}
	if opts.Cookies {
		report.Cookies = result.Cookies
	}
	if opts.Links {
		report.Links = result.Links
	}
	return report
}
