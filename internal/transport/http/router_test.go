package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetyaudit/internal/platform/metrics"
	"safetyaudit/pkg/platform/httputil"
	"safetyaudit/pkg/platform/middleware/auth"
	"safetyaudit/pkg/requestcontext"
)

type echoOwner struct{}

func (echoOwner) Register(r chi.Router) {
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"owner":      requestcontext.OwnerID(r.Context()).String(),
			"request_id": requestcontext.RequestID(r.Context()),
		})
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
}

func newTestRouter(checks map[string]HealthCheck) (http.Handler, *prometheus.Registry) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	return NewRouter(Config{
		Logger:       logger,
		Authenticate: auth.TrustOwnerHeader(logger),
		Metrics:      metrics.NewHTTP(reg),
		Gatherer:     reg,
		Handlers:     []Registrar{echoOwner{}},
		HealthChecks: checks,
	}), reg
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterAuthentication(t *testing.T) {
	router, _ := newTestRouter(nil)

	t.Run("rejects requests without an owner", func(t *testing.T) {
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("passes the owner to handlers", func(t *testing.T) {
		owner := "6f1c2b1e-5d0a-4f7e-9a8b-2c3d4e5f6a7b"
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(auth.HeaderOwnerID, owner)
		rec := serve(router, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), owner)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	})

	t.Run("recovers from panics", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/boom", nil)
		req.Header.Set(auth.HeaderOwnerID, "6f1c2b1e-5d0a-4f7e-9a8b-2c3d4e5f6a7b")
		rec := serve(router, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRouterOperationalEndpoints(t *testing.T) {
	t.Run("liveness needs no owner", func(t *testing.T) {
		router, _ := newTestRouter(nil)
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("readiness reports failing checks", func(t *testing.T) {
		router, _ := newTestRouter(map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"degraded","checks":{"database":"ok","redis":"unavailable"}}`, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})

	t.Run("metrics are labelled by route pattern", func(t *testing.T) {
		router, _ := newTestRouter(nil)
		serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		rec := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), `safetyaudit_http_requests_total{method="GET",route="/healthz",status="200"} 1`))
	})
}
