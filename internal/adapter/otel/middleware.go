package otel

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMiddleware traces API requests. Health probes are not traced. Spans are
// named "METHOD /route/{pattern}" so task IDs do not explode span cardinality.
//
// otelhttp renames the span itself after the handler returns when the request
// it holds carries a pattern; the formatter covers that case. When a
// middleware further down copied the request, the pattern never reaches
// otelhttp and the span is renamed here from chi's route context instead.
func HTTPMiddleware(serviceName string, opts ...otelhttp.Option) func(http.Handler) http.Handler {
	opts = append([]otelhttp.Option{
		otelhttp.WithFilter(traced),
		otelhttp.WithSpanNameFormatter(spanName),
	}, opts...)
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			rc := chi.RouteContext(r.Context())
			if rc == nil {
				return
			}
			if pattern := rc.RoutePattern(); pattern != "" {
				span := trace.SpanFromContext(r.Context())
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(attribute.String("http.route", pattern))
			}
		})
		return otelhttp.NewHandler(named, serviceName, opts...)
	}
}

func spanName(operation string, r *http.Request) string {
	if r.Pattern != "" {
		return r.Method + " " + r.Pattern
	}
	return operation
}

func traced(r *http.Request) bool {
	return r.URL.Path != "/health"
}
