// Package tracing ships certwatch spans (CT lookups, batch runs, telemetry
// posts) to an OTLP collector when one is configured.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// flushInterval bounds how long a finished span waits before export.
const flushInterval = 3 * time.Second

// ShutdownFunc exports pending spans and releases the exporter.
type ShutdownFunc func(context.Context) error

func disabled(context.Context) error { return nil }

// Init points the global tracer at the collector listening on endpoint
// (host:port, OTLP over HTTP). An empty endpoint means tracing is off: spans
// go to the default no-op provider and the returned ShutdownFunc is a no-op.
func Init(ctx context.Context, endpoint, service, version string, insecure bool) (ShutdownFunc, error) {
	if endpoint == "" {
		return disabled, nil
	}
	exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter, trace.WithBatchTimeout(flushInterval)),
		trace.WithResource(serviceResource(service, version)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return provider.Shutdown, nil
}

// serviceResource tags spans with the service name and build version. The
// tags are schemaless so they merge with whatever schema the SDK defaults use.
func serviceResource(service, version string) *resource.Resource {
	tagged, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return resource.Default()
	}
	return tagged
}
