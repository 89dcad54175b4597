package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bodega/bodega-api/internal/observability"
	"github.com/bodega/bodega-api/internal/products"
	"github.com/bodega/bodega-api/internal/products/productstest"
	"github.com/bodega/bodega-api/jobs"
)

func newTestRouter(cfg *Config) (http.Handler, *productstest.Store) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := productstest.New()
	svc := products.NewService(store, nil, nil, logger)
	return NewRouter(RouterParams{
		Logger:          logger,
		Config:          cfg,
		ProductsHandler: products.NewHandler(logger, svc),
		JobHandler:      jobs.NewHandler(nil, logger),
		Metrics:         observability.NewMetrics(),
	}), store
}

func TestRouterServesCatalogAndHealth(t *testing.T) {
	router, store := newTestRouter(&Config{})
	store.Seed("Inca Kola", "3.50", 6)

	for path, status := range map[string]int{
		"/healthz":                       http.StatusOK,
		"/api/productos/lista_productos": http.StatusOK,
		"/jobs/health":                   http.StatusOK,
		"/metrics":                       http.StatusOK,
		"/api/nada":                      http.StatusNotFound,
	} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, status, rr.Code, path)
	}
}

func TestRouterSetsSecurityHeaders(t *testing.T) {
	router, _ := newTestRouter(&Config{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestRouterRateLimitsPerIP(t *testing.T) {
	router, _ := newTestRouter(&Config{RateLimitRequests: 2, RateLimitWindow: time.Minute})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.7:5000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
