package promote

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
)

func okPage(body string) crawler.Page {
	return crawler.Page{Response: crawler.Response{OK: true, Status: http.StatusOK, Body: body}}
}

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()
	require.True(t, NewHeuristic(100).ShouldPromote(okPage("")))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()
	require.True(t, NewHeuristic(100).ShouldPromote(okPage(`<div id="__next"></div>`)))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()
	require.True(t, NewHeuristic(1000).ShouldPromote(okPage(`<html><script>var a=1;</script><p>t</p></html>`)))
	require.False(t, NewHeuristic(1000).ShouldPromote(okPage(`<html><body><p>plenty of server rendered text here</p></body></html>`)))
}

func TestHeuristic_ShouldPromote_DisabledForNon200(t *testing.T) {
	t.Parallel()
	page := crawler.Page{Response: crawler.Response{Status: http.StatusNotFound, Body: "not found"}}
	require.False(t, NewHeuristic(100).ShouldPromote(page))
}

type scriptedBrowser struct {
	page  crawler.Page
	err   error
	calls int
}

func (b *scriptedBrowser) Fetch(context.Context, crawler.FetchRequest) (crawler.Page, error) {
	b.calls++
	return b.page, b.err
}

func TestBrowserPromotesShells(t *testing.T) {
	t.Parallel()
	fast := &scriptedBrowser{page: okPage(`<div id="root"></div>`)}
	rendered := okPage("<div id=\"root\"><a href=\"/x\">x</a></div>")
	rendered.Links = []string{"http://x/x"}
	headless := &scriptedBrowser{page: rendered}

	page, err := New(fast, headless, NewHeuristic(0), zap.NewNop()).Fetch(context.Background(), crawler.FetchRequest{URL: "http://x/"})
	require.NoError(t, err)
	require.Equal(t, []string{"http://x/x"}, page.Links)
	require.Equal(t, 1, headless.calls)
}

func TestBrowserKeepsServerRenderedPages(t *testing.T) {
	t.Parallel()
	fast := &scriptedBrowser{page: okPage("<html><body><p>server rendered and long enough</p></body></html>")}
	headless := &scriptedBrowser{}

	_, err := New(fast, headless, NewHeuristic(0), nil).Fetch(context.Background(), crawler.FetchRequest{URL: "http://x/"})
	require.NoError(t, err)
	require.Zero(t, headless.calls)
}

func TestBrowserFallsBackWhenHeadlessFails(t *testing.T) {
	t.Parallel()
	fast := &scriptedBrowser{page: okPage("")}
	headless := &scriptedBrowser{err: errors.New("chrome missing")}

	page, err := New(fast, headless, NewHeuristic(0), nil).Fetch(context.Background(), crawler.FetchRequest{URL: "http://x/"})
	require.NoError(t, err)
	require.Equal(t, fast.page, page)
}

func TestBrowserPassesFastErrorsThrough(t *testing.T) {
	t.Parallel()
	browserErr := &crawler.BrowserError{URL: "http://x/", Response: crawler.Response{Status: http.StatusNotFound}}
	fast := &scriptedBrowser{err: browserErr}
	headless := &scriptedBrowser{}

	_, err := New(fast, headless, NewHeuristic(0), nil).Fetch(context.Background(), crawler.FetchRequest{URL: "http://x/"})
	require.ErrorIs(t, err, browserErr)
	require.Zero(t, headless.calls)
}
