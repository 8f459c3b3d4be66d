package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Echo", r.Header.Get("X-Trace"))
		fmt.Fprint(w, `<html><body>
			<a href="/a">A</a>
			<a href="b?x=1">B</a>
			<a href="https://other.example/c">C</a>
			<a>no href</a>
		</body></html>`)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<html><a href="/a">home</a></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchCollectsPage(t *testing.T) {
	t.Parallel()
	srv := newSite(t)
	f := New(Config{UserAgent: "crawlqueue-test", Timeout: 5 * time.Second})

	page, err := f.Fetch(context.Background(), crawler.FetchRequest{
		URL:     srv.URL + "/",
		Headers: http.Header{"X-Trace": {"yes"}},
	})
	require.NoError(t, err)
	require.True(t, page.Response.OK)
	require.Equal(t, http.StatusOK, page.Response.Status)
	require.Equal(t, "OK", page.Response.StatusText)
	require.Equal(t, "yes", page.Response.Headers.Get("X-Echo"))
	require.Contains(t, page.Response.Body, "no href")
	require.Equal(t, []string{
		srv.URL + "/a",
		srv.URL + "/b?x=1",
		"https://other.example/c",
	}, page.Links)
	require.Len(t, page.Cookies, 1)
	require.Equal(t, "session", page.Cookies[0].Name)

	// Revisiting the same URL is allowed; every invocation fetches fresh.
	_, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/"})
	require.NoError(t, err)
}

func TestFetchNonSuccessIsBrowserError(t *testing.T) {
	t.Parallel()
	srv := newSite(t)
	f := New(Config{})

	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/missing"})
	var browserErr *crawler.BrowserError
	require.ErrorAs(t, err, &browserErr)
	require.Equal(t, http.StatusNotFound, browserErr.Response.Status)
	require.False(t, browserErr.Response.OK)
	require.Contains(t, browserErr.Response.Body, "home")
}

func TestFetchConnectionFailureIsBrowserError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).Fetch(context.Background(), crawler.FetchRequest{URL: addr})
	var browserErr *crawler.BrowserError
	require.ErrorAs(t, err, &browserErr)
	require.Error(t, browserErr.Err)
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()
	srv := newSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{}).Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestFetcherTimeoutPrecedence(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	require.Equal(t, defaultTimeout, f.timeout(crawler.FetchRequest{}))
	f = New(Config{Timeout: 3 * time.Second})
	require.Equal(t, 3*time.Second, f.timeout(crawler.FetchRequest{}))
	require.Equal(t, time.Second, f.timeout(crawler.FetchRequest{Navigation: crawler.Navigation{Timeout: time.Second}}))
}

func TestBuildCollectorAppliesConfig(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true})
	collector := f.buildCollector(crawler.FetchRequest{URL: "https://example.com"}, &visit{})
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.False(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.ParseHTTPErrorResponse)
	require.True(t, collector.AllowURLRevisit)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	state := &visit{}
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, state)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onHTML)
	require.NotNil(t, hooks.onError)
	require.Equal(t, "a[href]", hooks.selector)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request: &colly.Request{
			URL: mustParseURL(t, "https://example.com"),
		},
	})
	require.NotNil(t, state.response)
	require.True(t, state.response.OK)
	require.Equal(t, "body", state.response.Body)
	require.Equal(t, "ok", state.response.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, state.err, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onHTML     colly.HTMLCallback
	selector   string
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnHTML(selector string, cb colly.HTMLCallback) {
	s.selector = selector
	s.onHTML = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
