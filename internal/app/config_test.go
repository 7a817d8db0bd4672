package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-erp/pharmacy/internal/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "@every 10s", cfg.ArchiveSweepSpec)
	require.Equal(t, 5*time.Minute, cfg.ArchiveLockTTL)
	require.Equal(t, 100, cfg.StockPageSize)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("STOCK_PAGE_SIZE", "0")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("STOCK_PAGE_SIZE", "50")
	t.Setenv("LOG_FORMAT", "xml")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("ARCHIVE_LOCK_TTL", "0s")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("ARCHIVE_LOCK_TTL", "1m")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 50, cfg.StockPageSize)
}

func TestRuntimeTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	require.False(t, InTestMode())
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", AppEnv: "production"}, &buf).Info("hello")
	require.True(t, strings.HasPrefix(buf.String(), "{"))
	require.Contains(t, buf.String(), `"env":"production"`)
}

func TestRouterHealthAndMetrics(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	router := NewRouter(RouterParams{Logger: newLogger(cfg, &bytes.Buffer{}), Config: cfg, Metrics: observability.NewMetrics()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "pharmacy_http_requests_total")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
