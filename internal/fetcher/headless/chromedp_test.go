package headless

import (
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlqueue/internal/crawler"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fetcher.Close() })
	require.Equal(t, 2, cap(fetcher.limiter))
}

func TestFetcherNavTimeout(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, defaultNavigationTimeout, fetcher.navTimeout(crawler.Navigation{}))
	fetcher.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, fetcher.navTimeout(crawler.Navigation{}))
	require.Equal(t, 3*time.Second, fetcher.navTimeout(crawler.Navigation{Timeout: 3 * time.Second}))
}

func TestFetcherSettleDelay(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, defaultSettleDelay, fetcher.settle())
	fetcher.cfg.SettleDelay = 10 * time.Millisecond
	require.Equal(t, 10*time.Millisecond, fetcher.settle())
}

func TestCloneHeaderAndNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}, "X-Single": {"s"}}
	cloned := cloneHeader(src)
	cloned.Add("X-Test", "c")
	require.Len(t, src["X-Test"], 2, "source header mutated")

	netHeaders := toNetworkHeaders(src)
	require.Equal(t, []string{"a", "b"}, netHeaders["X-Test"])
	require.Equal(t, "s", netHeaders["X-Single"])
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeScript,
		Response: &network.Response{
			Status: 500,
			URL:    "https://example.com/app.js",
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  204,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 204, status, "only document responses count")
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, "https://example.com/rendered", url)

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)
}

func TestConvertCookies(t *testing.T) {
	t.Parallel()

	cookies := convertCookies([]*network.Cookie{
		{Name: "session", Value: "abc", Domain: "example.com", Path: "/", Expires: -1, HTTPOnly: true},
		nil,
		{Name: "pref", Value: "dark", Expires: 1700000000, Secure: true},
	})
	require.Len(t, cookies, 2)
	require.True(t, cookies[0].Expires.IsZero())
	require.True(t, cookies[0].HTTPOnly)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), cookies[1].Expires)
	require.True(t, cookies[1].Secure)
}
