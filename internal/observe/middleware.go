package observe

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader carries the trace ID of every response.
const TraceHeader = "X-Trace-ID"

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the connection, which the
// WebSocket upgrade needs to hijack it.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// routes are the paths served by the front end. Anything else is labelled
// "other" to keep metric cardinality bounded.
var routes = map[string]bool{
	"/":        true,
	"/events":  true,
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// quietRoutes are polled constantly and only logged at debug level.
var quietRoutes = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

func route(path string) string {
	if routes[path] {
		return path
	}
	return "other"
}

// isUpgrade reports whether r asks to switch to the WebSocket protocol.
func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// Middleware traces every request (continuing a W3C traceparent when the
// client sends one), sets [TraceHeader], logs the outcome and records the
// latency on [Metrics.HTTPRequestDuration]. WebSocket sessions are traced and
// logged but not timed, since their duration is the client's connection
// time.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rt := route(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+rt,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			traceID := TraceID(ctx)
			w.Header().Set(TraceHeader, traceID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))
			upgrade := isUpgrade(r)
			if !upgrade {
				m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", rt),
				))
			}

			level := slog.LevelInfo
			if quietRoutes[rt] {
				level = slog.LevelDebug
			}
			slog.LogAttrs(ctx, level, "http: request completed",
				slog.String("trace_id", traceID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Bool("websocket", upgrade),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
