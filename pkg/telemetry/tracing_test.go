package telemetry

import (
	"context"
	"testing"

	"github.com/haasonsaas/stethoscope/pkg/config"
)

func TestSetupTracingDefaults(t *testing.T) {
	ctx := context.Background()
	provider, err := SetupTracing(ctx, "stethoscope-server", "test", config.TracingConfig{})
	if err != nil {
		t.Fatalf("setup tracing failed: %v", err)
	}
	if provider == nil {
		t.Fatal("expected provider")
	}
	if err := provider.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestSetupTracingRecordsSpans(t *testing.T) {
	ctx := context.Background()
	recorder := NewSpanRecorder()
	provider, err := SetupTracing(ctx, "stethoscope-server", "test", config.TracingConfig{LogSpans: true}, recorder)
	if err != nil {
		t.Fatalf("setup tracing failed: %v", err)
	}
	defer provider.Shutdown(ctx)

	_, span := Tracer().Start(ctx, "score")
	span.End()

	if recorder.FirstSpanNamed("score") == nil {
		t.Fatalf("expected recorded span, got %d spans", len(recorder.Completed()))
	}
}

func TestSetupTracingRejectsEmptyEndpoint(t *testing.T) {
	_, err := SetupTracing(context.Background(), "stethoscope-server", "test", config.TracingConfig{Endpoint: "https://"})
	if err == nil {
		t.Fatal("expected error for endpoint without host")
	}
}
