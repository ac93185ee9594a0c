// Package telemetry installs the OpenTelemetry tracer provider and offers a
// small helper for service-level spans.
package telemetry

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by the service layer.
const TracerName = "github.com/pesio-ai/be-hr-approvals"

// Config controls tracer installation.
type Config struct {
	Enabled        bool
	Exporter       string // "stdout" or "none"
	ServiceName    string
	ServiceVersion string
	Output         io.Writer
}

// Init installs a global tracer provider and returns its shutdown function.
// When tracing is disabled the global no-op provider is left in place.
func Init(cfg Config) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled || cfg.Exporter == "none" {
		return noop, nil
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return noop, err
	}
	return InitWithExporter(cfg, exporter), nil
}

// InitWithExporter installs a provider that batches spans to exporter.
func InitWithExporter(cfg Config, exporter sdktrace.SpanExporter) func(context.Context) error {
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// Start opens a span on the service tracer.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
