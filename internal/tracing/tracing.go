// Package tracing builds an OpenTelemetry tracer Provider from the
// tracing config section. When TracingConfig.OTLPEndpoint is empty, the
// Provider uses the OpenTelemetry API's no-op tracer provider so every
// Tracer() call still returns a valid, harmless tracer — matching the
// teacher's pattern of falling back to a no-op rather than special-casing
// "tracing disabled" at every call site. No other package in this module
// constructs a Provider or starts spans: the Process Executor and the
// WebSocket Bridge are not traced.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kandev/agentcore/internal/coreconfig"
)

// Provider owns the process-wide tracer provider and its shutdown hook.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
}

// NewProvider builds a Provider from cfg. A non-empty OTLPEndpoint wires an
// OTLP HTTP exporter with a batch span processor and registers it as the
// global tracer provider; an empty one uses the no-op provider, without
// registering it globally, so Tracer() is always safe to call.
func NewProvider(ctx context.Context, cfg coreconfig.TracingConfig) (*Provider, error) {
	if cfg.OTLPEndpoint == "" {
		return &Provider{tp: trace.NewNoopTracerProvider(), shutdown: func(context.Context) error { return nil }}, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, err
	}

	sdkProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdkProvider)

	return &Provider{tp: sdkProvider, shutdown: sdkProvider.Shutdown}, nil
}

// Tracer returns a named tracer from the underlying provider.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// Shutdown flushes and stops the tracer provider, with a bounded timeout so
// a stuck exporter never blocks the Server Host's shutdown sequence
// indefinitely.
func (p *Provider) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.shutdown(ctx)
}
