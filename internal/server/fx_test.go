package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/novel-crawler/internal/config"
	"github.com/JakeFAU/novel-crawler/internal/novel"
	"github.com/JakeFAU/novel-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/novel-crawler/internal/policy/simple"
	memorystore "github.com/JakeFAU/novel-crawler/internal/storage/memory"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Progress.PrometheusSink = false
	cfg.Progress.LogSink = false
	return cfg
}

func TestBuildInMemory(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, app.Close(context.Background())) })

	require.IsType(t, &memorystore.ResultStore{}, app.Store())

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/12345", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"state":"unknown"`)
}

func TestBuildLocalStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = config.BackendLocal
	cfg.Storage.LocalDir = t.TempDir()

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, app.Close(context.Background()))
}

func TestBuildBadgerStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = config.BackendBadger
	cfg.Storage.BadgerPath = t.TempDir()

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, app.Close(context.Background()))
}

func TestFetchRejectsUnknownReference(t *testing.T) {
	app, err := Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	_, err = app.Fetch(context.Background(), "https://example.com/not-a-novel")
	require.ErrorIs(t, err, novel.ErrInvalidReference)
}

func TestSetupProgressPrometheusSink(t *testing.T) {
	cfg := testConfig(t)
	cfg.Progress.PrometheusSink = true
	app := NewApp(cfg, zap.NewNop())
	app.registerer = prometheus.NewRegistry()

	emitter, err := setupProgress(context.Background(), app)
	require.NoError(t, err)
	require.NotNil(t, app.progressHub)
	require.Same(t, app.progressHub, emitter)
	require.NoError(t, app.progressHub.Close(context.Background()))
}

func TestSetupLimiter(t *testing.T) {
	cfg := testConfig(t)
	app := NewApp(cfg, zap.NewNop())
	require.IsType(t, &ratelimit.Limiter{}, setupLimiter(app))

	app.cfg.RateLimit.DefaultRPS = 0
	app.cfg.RateLimit.Hosts = nil
	require.IsType(t, &simple.Limiter{}, setupLimiter(app))
}

func TestFirstOr(t *testing.T) {
	require.Equal(t, "fallback", firstOr(nil, "fallback"))
	require.Equal(t, "fallback", firstOr([]string{""}, "fallback"))
	require.Equal(t, "ua", firstOr([]string{"ua", "other"}, "fallback"))
}
