package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitTracer_Disabled(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())

	shutdown, err := InitTracer(Options{ServiceName: "webhook-relay"}, nil)
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown func is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("tracer provider = %T, want noop", otel.GetTracerProvider())
	}
}

func TestInitTracer_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer(Options{ServiceName: "webhook-relay", Version: "test", Enabled: true, Writer: &buf}, nil)
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	_, span := otel.Tracer("test").Start(context.Background(), "synthesize")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"Name": "synthesize"`) {
		t.Errorf("exported output missing span name:\n%s", out)
	}
	if !strings.Contains(out, "webhook-relay") {
		t.Errorf("exported output missing service name:\n%s", out)
	}
}
