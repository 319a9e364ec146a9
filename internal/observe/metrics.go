// Package observe provides application-wide observability primitives for
// Verona: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [Start] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Verona metrics.
const meterName = "github.com/MrWong99/verona"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// GenerationDuration tracks how long a speaker takes to produce a line.
	// Use with attribute.String("speaker", ...).
	GenerationDuration metric.Float64Histogram

	// HTTPRequestDuration tracks status server request time. Use with attributes:
	//   attribute.String("route", ...) (the ServeMux pattern), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// Lines counts emitted scene lines. Use with attribute:
	//   attribute.String("kind", ...) (dialogue, entrance, exit)
	Lines metric.Int64Counter

	// SpeakerLines counts dialogue lines per speaker. Use with attribute:
	//   attribute.String("speaker", ...)
	SpeakerLines metric.Int64Counter

	// --- Error counters ---

	// GenerationFailures counts lines a speaker could not produce. Use with
	// attribute.String("speaker", ...).
	GenerationFailures metric.Int64Counter

	// SinkErrors counts failed deliveries. Use with attribute:
	//   attribute.String("sink", ...)
	SinkErrors metric.Int64Counter

	// --- Gauges ---

	// OnStage tracks the number of speakers currently on stage.
	OnStage metric.Int64UpDownCounter

	// FeedClients tracks the number of connected live-feed subscribers.
	FeedClients metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Sentence
// generation is in-memory work, so the low end is fine-grained.
var latencyBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.GenerationDuration, err = m.Float64Histogram("verona.generation.duration",
		metric.WithDescription("Latency of producing one line of dialogue."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("verona.http.request.duration",
		metric.WithDescription("Status server request latency by route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Lines, err = m.Int64Counter("verona.scene.lines",
		metric.WithDescription("Total scene lines by kind."),
	); err != nil {
		return nil, err
	}
	if met.SpeakerLines, err = m.Int64Counter("verona.speaker.lines",
		metric.WithDescription("Total dialogue lines by speaker."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.GenerationFailures, err = m.Int64Counter("verona.generation.failures",
		metric.WithDescription("Total failed line generations by speaker."),
	); err != nil {
		return nil, err
	}
	if met.SinkErrors, err = m.Int64Counter("verona.sink.errors",
		metric.WithDescription("Total failed line deliveries by sink."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.OnStage, err = m.Int64UpDownCounter("verona.scene.on_stage",
		metric.WithDescription("Number of speakers currently on stage."),
	); err != nil {
		return nil, err
	}
	if met.FeedClients, err = m.Int64UpDownCounter("verona.feed.clients",
		metric.WithDescription("Number of connected live-feed subscribers."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordLine increments the line counter for kind and, for dialogue, the
// per-speaker counter.
func (m *Metrics) RecordLine(ctx context.Context, kind, speaker string) {
	m.Lines.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	if speaker != "" {
		m.SpeakerLines.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", speaker)))
	}
}

// RecordGenerationFailure increments the failure counter for speaker.
func (m *Metrics) RecordGenerationFailure(ctx context.Context, speaker string) {
	m.GenerationFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("speaker", speaker)),
	)
}

// RecordSinkError increments the delivery error counter for sink.
func (m *Metrics) RecordSinkError(ctx context.Context, sink string) {
	m.SinkErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("sink", sink)),
	)
}
