package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type captureWriter struct {
	entries []string
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.entries = append(c.entries, string(p))
	return len(p), nil
}

func TestLoggingExporterEmitsSpan(t *testing.T) {
	writer := &captureWriter{}
	exporter := newLoggingExporterWithLogger(zerolog.New(writer).Level(zerolog.DebugLevel))
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	ctx := context.Background()
	tracer := provider.Tracer("test")

	ctx, parent := tracer.Start(ctx, "analysis")
	_, child := tracer.Start(ctx, "validate")
	child.SetAttributes(attribute.String("error.code", "SCHEMA_ERROR"))
	child.SetStatus(codes.Error, "schema")
	child.End()
	parent.End()

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if len(writer.entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(writer.entries))
	}

	first := writer.entries[0]
	for _, want := range []string{`"level":"warn"`, `"span_name":"validate"`, `"error.code":"SCHEMA_ERROR"`, `"parent_span_id"`} {
		if !strings.Contains(first, want) {
			t.Errorf("entry %s missing %s", first, want)
		}
	}
	if !strings.Contains(writer.entries[1], `"level":"debug"`) {
		t.Errorf("parent span should log at debug: %s", writer.entries[1])
	}
}
