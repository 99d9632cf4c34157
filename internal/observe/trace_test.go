package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestTracerProvider returns a TracerProvider with an in-memory exporter
// for inspecting recorded spans.
func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

// useGlobalTracer swaps the global tracer provider for the duration of t.
func useGlobalTracer(t *testing.T, tp *sdktrace.TracerProvider) {
	t.Helper()
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
}

func TestCorrelationID_EmptyByDefault(t *testing.T) {
	t.Parallel()
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestCorrelationID_ReturnsTraceID(t *testing.T) {
	t.Parallel()
	tp, _ := newTestTracerProvider(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("correlation ID length = %d, want 32", len(cid))
	}
	if cid != span.SpanContext().TraceID().String() {
		t.Errorf("correlation ID = %q, want span trace ID", cid)
	}
}

func TestStartControlSpan_NamesAndEnds(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	useGlobalTracer(t, tp)

	_, span := StartControlSpan(context.Background(), "open", Attr("backend", "null"))
	EndSpan(span, nil)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "pipeline.open" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "pipeline.open")
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("span status is error for nil err")
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	useGlobalTracer(t, tp)

	_, span := StartControlSpan(context.Background(), "reconfigure")
	EndSpan(span, errors.New("device busy"))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "device busy" {
		t.Errorf("description = %q", spans[0].Status.Description)
	}
}

func TestLogger_IncludesTraceID(t *testing.T) {
	t.Parallel()
	tp, _ := newTestTracerProvider(t)

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, span := tp.Tracer("test").Start(context.Background(), "log-test")
	defer span.End()

	Logger(ctx, base).Info("test message")

	logged := buf.String()
	if !strings.Contains(logged, "trace_id=") {
		t.Errorf("log output missing trace_id, got: %s", logged)
	}
	if !strings.Contains(logged, "span_id=") {
		t.Errorf("log output missing span_id, got: %s", logged)
	}
}

func TestLogger_NoSpan(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	l := Logger(context.Background(), base)
	if l != base {
		t.Error("Logger without span should return base unchanged")
	}
	l.Info("test message")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log output should not contain trace_id, got: %s", buf.String())
	}
}
