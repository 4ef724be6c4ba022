package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2, SettleDelay: -time.Second})
	require.NoError(t, err)
	defer fetcher.Close()
	require.NotNil(t, fetcher.slots)
	require.Equal(t, DefaultWaitSelector, fetcher.cfg.WaitSelector)
	require.Equal(t, DefaultNavigationTimeout, fetcher.cfg.NavigationTimeout)
	require.Zero(t, fetcher.cfg.SettleDelay)

	unbounded, err := NewChromedp(Config{WaitSelector: "#honbun"})
	require.NoError(t, err)
	defer unbounded.Close()
	require.Nil(t, unbounded.slots)
	require.Equal(t, "#honbun", unbounded.cfg.WaitSelector)
}

func TestFetchHonorsCanceledSlotWait(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	defer fetcher.Close()
	require.True(t, fetcher.slots.TryAcquire(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fetcher.Fetch(ctx, novel.FetchRequest{URL: "https://syosetu.org/novel/12345/1.html"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDocumentResponseKeepsLastDocument(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 301, URL: "http://ncode.syosetu.com/n1234ab/1"},
	})
	doc.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  200,
			URL:     "https://ncode.syosetu.com/n1234ab/1/",
			Headers: network.Headers{"Set-Cookie": "a=1\nb=2", "X-Request-ID": "abc"},
		},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 404, URL: "https://cdn/app.js"},
	})
	doc.observe("unrelated event")

	status, url, headers := doc.result("https://fallback")
	require.Equal(t, 200, status)
	require.Equal(t, "https://ncode.syosetu.com/n1234ab/1/", url)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, []string{"a=1", "b=2"}, headers.Values("Set-Cookie"))
}

func TestDocumentResponseFallbacks(t *testing.T) {
	t.Parallel()

	status, url, headers := (&documentResponse{}).result("https://syosetu.org/novel/12345/")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://syosetu.org/novel/12345/", url)
	require.NotNil(t, headers)
}

func TestNetworkHeadersJoinsValues(t *testing.T) {
	t.Parallel()

	got := networkHeaders(http.Header{"Accept-Language": {"ja", "en"}, "X-Empty": nil})
	require.Equal(t, network.Headers{"Accept-Language": "ja, en"}, got)
	require.Equal(t, "b", firstNonEmpty("", "b", "c"))
	require.Empty(t, firstNonEmpty())
}
