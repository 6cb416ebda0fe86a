package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMiddlewareResolvesRoutePattern(t *testing.T) {
	var pattern string

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			pattern = routePattern(req)
		})
	})
	r.Use(TracingMiddleware("test"))
	r.Use(MetricsMiddleware)
	r.Get("/tiles/{level}/{x}/{y}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tiles/3/1/2", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if pattern != "/tiles/{level}/{x}/{y}" {
		t.Fatalf("route pattern = %q", pattern)
	}
}

func TestRoutePatternFallsBackToPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/unrouted", nil)
	if got := routePattern(req); got != "/unrouted" {
		t.Fatalf("routePattern = %q, want /unrouted", got)
	}
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)
	if _, err := rw.Write([]byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if rw.statusCode != http.StatusNotFound || rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d/%d, want 404", rw.statusCode, rec.Code)
	}
}
