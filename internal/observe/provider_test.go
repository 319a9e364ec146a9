package observe

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStart_ExportsSceneMetricsAndSpans(t *testing.T) {
	origMP := otel.GetMeterProvider()
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	ctx := context.Background()
	reg := prometheus.NewRegistry()
	spans := tracetest.NewInMemoryExporter()
	tel, err := Start(ctx, TelemetryConfig{
		Version:       "test",
		Mode:          "online",
		SceneID:       "balcony",
		TraceExporter: spans,
		Registerer:    reg,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	tel.Metrics.RecordLine(ctx, "dialogue", "Romeo")
	_, span := StartLine(ctx, nil)
	EndLine(span, "dialogue", "Romeo", nil)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() == "verona_scene_lines_total" {
			found = true
		}
	}
	if !found {
		t.Error("verona_scene_lines_total not exported")
	}

	if err := tel.tracers.ForceFlush(ctx); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	got := spans.GetSpans()
	if len(got) != 1 {
		t.Fatalf("exported %d spans, want 1", len(got))
	}
	attrs := map[string]string{}
	for _, kv := range got[0].Resource.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	for k, want := range map[string]string{
		"service.name":       "verona",
		"service.version":    "test",
		"verona.driver.mode": "online",
		"verona.scene.id":    "balcony",
	} {
		if attrs[k] != want {
			t.Errorf("resource %s = %q, want %q", k, attrs[k], want)
		}
	}
}
