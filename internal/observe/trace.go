package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/verona"

// SpanSceneNext is the span covering one scene line, from the director's
// decision through persistence and every sink.
const SpanSceneNext = "scene.next"

// Span attribute keys of a scene line.
const (
	AttrLineKind    = attribute.Key("line.kind")
	AttrLineSpeaker = attribute.Key("line.speaker")
)

// tracer returns the Verona tracer of tp, or of the global provider when tp
// is nil.
func tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(tracerName)
}

// StartLine opens a [SpanSceneNext] span. Close it with [EndLine].
func StartLine(ctx context.Context, tp trace.TracerProvider) (context.Context, trace.Span) {
	return tracer(tp).Start(ctx, SpanSceneNext)
}

// EndLine records the outcome of a scene line on span and ends it. A failed
// line marks the span as an error; a produced one carries its kind and, for
// dialogue, its speaker.
func EndLine(span trace.Span, kind, speaker string, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(AttrLineKind.String(kind))
	if speaker != "" {
		span.SetAttributes(AttrLineSpeaker.String(speaker))
	}
}

// traceID is the hex trace ID of the span in ctx, or "".
func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger is the default logger tagged with the trace and span of ctx, so the
// log lines of one scene line or request can be found together.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
