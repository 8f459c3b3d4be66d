// Package collyfetcher implements crawler.Browser using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements crawler.Browser using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

// visit accumulates what the collector callbacks observe for one URL.
type visit struct {
	start    time.Time
	response *crawler.Response
	links    []string
	err      error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	// Non-2xx pages still reach OnResponse so they can be reported with their status.
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly and enumerates the page's links.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.Page, error) {
	state := &visit{start: time.Now()}
	collector := f.buildCollector(request, state)

	if err := f.runCollector(ctx, collector, request.URL, state); err != nil {
		return crawler.Page{}, err
	}
	page := crawler.Page{
		Response: *state.response,
		Links:    state.links,
		Cookies:  convertCookies(collector.Cookies(state.response.URL)),
		Duration: time.Since(state.start),
	}
	if !page.Response.OK {
		return crawler.Page{}, &crawler.BrowserError{URL: request.URL, Response: page.Response}
	}
	return page, nil
}

func (f *Fetcher) buildCollector(request crawler.FetchRequest, state *visit) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.timeout(request))

	f.configureCollectorHooks(collector, request, state)
	return collector
}

func (f *Fetcher) timeout(request crawler.FetchRequest) time.Duration {
	switch {
	case request.Navigation.Timeout > 0:
		return request.Navigation.Timeout
	case f.cfg.Timeout > 0:
		return f.cfg.Timeout
	default:
		return defaultTimeout
	}
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, request crawler.FetchRequest, state *visit) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		state.response = &crawler.Response{
			OK:         r.StatusCode >= 200 && r.StatusCode < 300,
			Status:     r.StatusCode,
			StatusText: http.StatusText(r.StatusCode),
			Headers:    headers,
			URL:        r.Request.URL.String(),
			Body:       string(r.Body),
		}
	})

	hooks.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if link := e.Request.AbsoluteURL(e.Attr("href")); link != "" {
			state.links = append(state.links, link)
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		state.err = err
		if r != nil && r.StatusCode != 0 && state.response == nil {
			state.response = &crawler.Response{
				Status:     r.StatusCode,
				StatusText: http.StatusText(r.StatusCode),
				URL:        request.URL,
			}
		}
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, state *visit) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = state.err
		}
		if err != nil {
			browserErr := &crawler.BrowserError{URL: url, Err: err}
			if state.response != nil {
				browserErr.Response = *state.response
			}
			return browserErr
		}
		if state.response == nil {
			return &crawler.BrowserError{URL: url, Err: fmt.Errorf("no response received")}
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request crawler.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func convertCookies(cookies []*http.Cookie) []crawler.Cookie {
	out := make([]crawler.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, crawler.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		})
	}
	return out
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
