package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/northstar/funding-discovery/internal/observability"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	var seen string
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.RequestIDFromContext(r.Context())
	}))

	t.Run("propagates incoming header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Correlation-ID", "abc-123")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if got := rr.Header().Get("X-Correlation-ID"); got != "abc-123" {
			t.Errorf("expected abc-123, got %q", got)
		}
		if seen != "abc-123" {
			t.Errorf("expected context request id abc-123, got %q", seen)
		}
	})

	t.Run("generates one when absent", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		got := rr.Header().Get("X-Correlation-ID")
		if len(got) != 16 {
			t.Errorf("expected 16 hex chars, got %q", got)
		}
		if seen != got {
			t.Errorf("context id %q does not match header %q", seen, got)
		}
	})
}

func TestRequestLogMiddleware_RecordsRoutePattern(t *testing.T) {
	metrics := observability.NewMetrics("test_http_middleware")
	srv, _ := newTestServer()
	srv.deps.Metrics = metrics
	srv.router = srv.buildRouter()

	doRequest(t, srv, http.MethodGet, "/api/v1/sessions/not-a-uuid", "")
	doRequest(t, srv, http.MethodGet, "/does-not-exist", "")

	if got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/api/v1/sessions/{sessionID}", "400")); got != 1 {
		t.Errorf("expected one request under the route pattern, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("expected one unmatched request, got %v", got)
	}
}

func TestJSONContentType(t *testing.T) {
	srv := NewServer(Config{}, Deps{Health: &mockHealth{}}, zerolog.Nop())
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
}
