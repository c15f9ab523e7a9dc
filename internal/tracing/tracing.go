// Package tracing installs the process-wide OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Supported exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Shutdown flushes pending spans and releases the provider.
type Shutdown func(context.Context) error

// Validate reports whether exporter names a supported exporter. The empty
// string means none.
func Validate(exporter string) error {
	switch normalize(exporter) {
	case ExporterNone, ExporterStdout:
		return nil
	default:
		return fmt.Errorf("unknown trace exporter %q, want %s or %s", exporter, ExporterNone, ExporterStdout)
	}
}

// Setup installs a tracer provider for service that exports through
// exporter. Spans written by the stdout exporter go to out. With no exporter
// the global no-op provider stays in place.
func Setup(exporter, service string, out io.Writer) (Shutdown, error) {
	if err := Validate(exporter); err != nil {
		return nil, err
	}
	if normalize(exporter) == ExporterNone {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", service),
		)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func normalize(exporter string) string {
	exporter = strings.ToLower(strings.TrimSpace(exporter))
	if exporter == "" {
		return ExporterNone
	}
	return exporter
}
