package observe

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// unmatched labels requests no route accepted.
const unmatched = "unmatched"

// responseRecorder remembers the status a handler wrote and whether it took
// the connection over.
type responseRecorder struct {
	http.ResponseWriter
	status   int
	hijacked bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes a feed client's WebSocket upgrade through.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(r.ResponseWriter).Hijack()
	if err == nil {
		r.hijacked = true
		r.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

// Middleware traces every request to the status server and times it into
// [Metrics.HTTPRequestDuration].
//
// Requests are labelled with the [http.ServeMux] pattern that served them
// ("GET /readyz"), never the raw path; requests no pattern matched share the
// "unmatched" label. Feed clients that upgrade to a WebSocket are logged
// when they disconnect and are not recorded in the duration histogram.
//
// tp may be nil to use the global tracer provider.
func Middleware(m *Metrics, tp trace.TracerProvider) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}
	t := tracer(tp)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := t.Start(ctx, r.Method+" "+unmatched,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if id := traceID(ctx); id != "" {
				w.Header().Set("X-Correlation-ID", id)
			}

			// ServeMux records the matched pattern on the request it is given.
			r = r.WithContext(ctx)
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = unmatched
			}
			span.SetName(route)
			span.SetAttributes(
				semconv.HTTPRouteKey.String(route),
				semconv.HTTPResponseStatusCode(rec.status),
			)

			elapsed := time.Since(start)
			log := Logger(ctx).With("route", route)
			if rec.hijacked {
				log.Debug("feed client disconnected", "connected_for", elapsed)
				return
			}
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("route", route),
					attribute.Int("status", rec.status),
				),
			)
			log.Debug("request served", "status", rec.status, "duration", elapsed)
		})
	}
}
