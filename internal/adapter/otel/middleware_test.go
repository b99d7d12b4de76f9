package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type ctxKey struct{}

// copyRequest stands in for middlewares that attach values to the context,
// which hands the router a copy of the request otelhttp holds.
func copyRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, "x")))
	})
}

func TestHTTPMiddlewareSpanNames(t *testing.T) {
	tests := []struct {
		name  string
		extra []func(http.Handler) http.Handler
	}{
		{"router sees otelhttp request", nil},
		{"request copied downstream", []func(http.Handler) http.Handler{copyRequest}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

			r := chi.NewRouter()
			r.Use(HTTPMiddleware("taskcrew-test", otelhttp.WithTracerProvider(tp)))
			r.Use(tt.extra...)
			ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
			r.Get("/health", ok)
			r.Get("/api/v1/tasks/{id}", ok)

			for _, path := range []string{"/health", "/api/v1/tasks/t-42", "/api/v1/tasks/t-43"} {
				r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
			}

			spans := sr.Ended()
			if len(spans) != 2 {
				t.Fatalf("got %d spans, want 2 (health is not traced)", len(spans))
			}
			for _, s := range spans {
				if s.Name() != "GET /api/v1/tasks/{id}" {
					t.Errorf("span name = %q", s.Name())
				}
			}
		})
	}
}
