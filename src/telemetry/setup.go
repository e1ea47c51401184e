// Package telemetry wires OpenTelemetry tracing for buildctl.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"buildctl-agent/src/logger"
)

// InstrumentationName names the tracer used for build server calls.
const InstrumentationName = "buildctl-agent"

// Shutdown flushes and stops a tracer provider.
type Shutdown func(context.Context) error

// InitTracer installs a global tracer provider exporting spans to w.
// If the exporter cannot be created, tracing stays disabled and a no-op
// shutdown is returned.
func InitTracer(ctx context.Context, serviceName string, w io.Writer, log logger.Logger) Shutdown {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Warn("[Telemetry] exporter init failed: %v", err)
		return func(context.Context) error { return nil }
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	log.Debug("[Telemetry] tracing enabled for %s", serviceName)

	return tp.Shutdown
}

// Tracer returns the tracer used by buildctl packages. It resolves the
// global provider on every call, so spans are dropped until InitTracer runs.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
