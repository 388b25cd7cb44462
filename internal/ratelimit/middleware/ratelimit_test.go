package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetyaudit/internal/ratelimit/metrics"
	"safetyaudit/internal/ratelimit/models"
	"safetyaudit/internal/ratelimit/store/bucket"
	id "safetyaudit/pkg/domain"
	"safetyaudit/pkg/requestcontext"
)

type brokenStore struct{}

func (brokenStore) AllowN(context.Context, string, int, int, time.Duration) (*models.Result, error) {
	return nil, errors.New("redis down")
}

func newHandler(store BucketStore, mt *metrics.Metrics, opts ...Option) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append(opts,
		WithLimit(models.ClassWrite, models.Limit{Requests: 2, Window: time.Minute}),
		WithLimit(models.ClassUpload, models.Limit{Requests: 1, Window: time.Minute}),
		WithMetrics(mt),
	)
	m := New(store, logger, opts...)
	return m.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func request(method, path string, owner id.OwnerID) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if !owner.IsNil() {
		req = req.WithContext(requestcontext.WithOwnerID(req.Context(), owner))
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("limits writes per owner", func(t *testing.T) {
		mt := metrics.New(prometheus.NewRegistry())
		h := newHandler(bucket.NewInMemoryBucketStore(), mt)
		owner := id.OwnerID(uuid.New())

		for range 2 {
			rec := serve(h, request(http.MethodPost, "/accidents", owner))
			require.Equal(t, http.StatusNoContent, rec.Code)
		}
		rec := serve(h, request(http.MethodPost, "/accidents", owner))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"error":"rate_limit_exceeded","error_description":"Too many requests for this account. Please try again later.","retry_after":60}`, rec.Body.String())

		other := serve(h, request(http.MethodPost, "/accidents", id.OwnerID(uuid.New())))
		assert.Equal(t, http.StatusNoContent, other.Code, "budgets are per owner")

		assert.Equal(t, float64(3), testutil.ToFloat64(mt.Decisions.WithLabelValues("write", "allowed")))
		assert.Equal(t, float64(1), testutil.ToFloat64(mt.Decisions.WithLabelValues("write", "rejected")))
	})

	t.Run("uploads have their own budget", func(t *testing.T) {
		h := newHandler(bucket.NewInMemoryBucketStore(), metrics.New(prometheus.NewRegistry()))
		owner := id.OwnerID(uuid.New())

		assert.Equal(t, http.StatusNoContent, serve(h, request(http.MethodPost, "/evidence", owner)).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(h, request(http.MethodPost, "/evidence", owner)).Code)
		assert.Equal(t, http.StatusNoContent, serve(h, request(http.MethodPost, "/accidents", owner)).Code)
	})

	t.Run("classes without a limit pass", func(t *testing.T) {
		h := newHandler(bucket.NewInMemoryBucketStore(), metrics.New(prometheus.NewRegistry()))
		owner := id.OwnerID(uuid.New())
		for range 5 {
			rec := serve(h, request(http.MethodGet, "/accidents", owner))
			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("store failures fail open", func(t *testing.T) {
		mt := metrics.New(prometheus.NewRegistry())
		h := newHandler(brokenStore{}, mt)
		rec := serve(h, request(http.MethodPost, "/accidents", id.OwnerID(uuid.New())))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, float64(1), testutil.ToFloat64(mt.StoreErrors))
	})

	t.Run("disabled", func(t *testing.T) {
		h := newHandler(brokenStore{}, metrics.New(prometheus.NewRegistry()), WithDisabled(true))
		owner := id.OwnerID(uuid.New())
		for range 3 {
			assert.Equal(t, http.StatusNoContent, serve(h, request(http.MethodPost, "/accidents", owner)).Code)
		}
	})
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, models.ClassRead, models.ClassOf(httptest.NewRequest(http.MethodGet, "/evidence/x/url", nil)))
	assert.Equal(t, models.ClassUpload, models.ClassOf(httptest.NewRequest(http.MethodPost, "/evidence", nil)))
	assert.Equal(t, models.ClassWrite, models.ClassOf(httptest.NewRequest(http.MethodPatch, "/accidents/x", nil)))
	assert.Equal(t, models.ClassWrite, models.ClassOf(httptest.NewRequest(http.MethodDelete, "/accidents/x", nil)))
}
