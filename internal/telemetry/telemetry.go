// Package telemetry wires OpenTelemetry tracing. When disabled, StartSpan
// returns the span already in the context, so callers never check.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "llmtrader"

var (
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
)

// Config controls trace export.
type Config struct {
	Enabled bool
	Output  io.Writer // defaults to stderr
}

// Init installs the global tracer provider. It is a no-op when disabled.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return fmt.Errorf("telemetry.Init: exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return fmt.Errorf("telemetry.Init: resource: %w", err)
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(serviceName)
	return nil
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// StartSpan opens a span named name.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// LogAttrs returns trace_id and span_id for structured logs, or nil outside a span.
func LogAttrs(ctx context.Context) []any {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []any{"trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String()}
}

// Logger returns slog.Default enriched with the trace ids of ctx.
func Logger(ctx context.Context) *slog.Logger {
	if attrs := LogAttrs(ctx); attrs != nil {
		return slog.Default().With(attrs...)
	}
	return slog.Default()
}
