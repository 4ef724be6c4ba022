package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

func ok(body string) novel.FetchResponse {
	return novel.FetchResponse{StatusCode: 200, Body: []byte(body)}
}

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	require.True(t, NewHeuristic(100).ShouldPromote(ok("")))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	require.True(t, NewHeuristic(100).ShouldPromote(ok(`<div id="__next"></div>`)))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	require.True(t, h.ShouldPromote(ok(`<html><script>var a=1;</script><p>t</p></html>`)))
}

func TestHeuristic_ShouldPromote_DisabledForNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(novel.FetchResponse{StatusCode: 404, Body: []byte("not found")}))
}

func TestHeuristic_ContentMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(10, `id="honbun"`, "js-novel-text")
	require.False(t, h.ShouldPromote(ok(`<div id="honbun"><p>text</p></div>`)))
	require.False(t, h.ShouldPromote(ok(`<div class="js-novel-text"><p>text</p></div>`)))
	require.True(t, h.ShouldPromote(ok(`<div class="loading">please wait while the chapter loads</div>`)))
}

func TestNewHeuristicDefaults(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	require.Equal(t, DefaultBodyLengthThreshold, h.BodyLengthThreshold)
	require.Empty(t, h.ContentMarkers)
	require.False(t, h.ShouldPromote(ok("<html><body><p>plain static page</p></body></html>")))
}
