package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestFactoryRequiresServiceName(t *testing.T) {
	if _, err := NewFactory().Create(&Config{Enabled: true, Exporter: ExporterNone}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestStartInstallsSamplingProvider(t *testing.T) {
	comp, err := NewFactory().Create(&Config{Enabled: true, ServiceName: "delegate-test", Exporter: ExporterNone})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tc := comp.(*TelemetryComponent)
	ctx := context.Background()
	if err := tc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tc.Stop(ctx)

	_, span := otel.Tracer("test").Start(ctx, "op")
	defer span.End()
	if !span.SpanContext().IsValid() || !span.SpanContext().IsSampled() {
		t.Fatalf("expected sampled span, got %+v", span.SpanContext())
	}
	if err := tc.HealthCheck(); err != nil {
		t.Fatalf("health: %v", err)
	}
}
