package observe

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Resource attribute keys describing the running scene.
const (
	AttrDriverMode = attribute.Key("verona.driver.mode")
	AttrSceneID    = attribute.Key("verona.scene.id")
)

// TelemetryConfig describes one run of the bot to the OTel SDK.
type TelemetryConfig struct {
	// Version is reported as service.version.
	Version string

	// Mode is the driver mode, "interactive" or "online".
	Mode string

	// SceneID identifies the persisted scene this run continues.
	SceneID string

	// TraceExporter receives scene and request spans. Nil keeps spans
	// in-process, which still tags log lines with trace IDs.
	TraceExporter sdktrace.SpanExporter

	// Registerer receives the Prometheus bridge. Nil means
	// [prometheus.DefaultRegisterer].
	Registerer prometheus.Registerer
}

// Telemetry owns the meter and tracer providers of one run. Both are also
// installed as the OTel globals.
type Telemetry struct {
	// Metrics are the Verona instruments on the run's meter provider.
	Metrics *Metrics

	meters  *sdkmetric.MeterProvider
	tracers *sdktrace.TracerProvider
}

// Start sets up metrics exported through Prometheus and tracing for the run
// described by cfg. Call [Telemetry.Shutdown] before exiting.
func Start(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName("verona")}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	if cfg.Mode != "" {
		attrs = append(attrs, AttrDriverMode.String(cfg.Mode))
	}
	if cfg.SceneID != "" {
		attrs = append(attrs, AttrSceneID.String(cfg.SceneID))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, err
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}

	t := &Telemetry{
		meters: sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exporter)),
	}
	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	t.tracers = sdktrace.NewTracerProvider(tpOpts...)

	if t.Metrics, err = NewMetrics(t.meters); err != nil {
		return nil, errors.Join(err, t.Shutdown(ctx))
	}

	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.tracers)
	return t, nil
}

// TracerProvider returns the run's tracer provider.
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracers
}

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tracers.Shutdown(ctx), t.meters.Shutdown(ctx))
}
