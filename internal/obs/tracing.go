// Package obs wires OpenTelemetry tracing across the Agent Loop and Tool
// Registry (SPEC_FULL.md §4.1/§4.5's additions): one span per iteration,
// one child span per model turn, and one child span per tool dispatch. It
// never gates control flow — every span is best-effort observability.
package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracingConfig controls whether tracing is active and where spans go.
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Provider wraps the tracer the rest of the runtime pulls spans from.
type Provider struct {
	sdk    *sdktrace.TracerProvider
	tracer trace.Tracer
}

// NewProvider builds a Provider. A disabled config returns a no-op tracer so
// every call site can unconditionally start spans.
func NewProvider(ctx context.Context, cfg TracingConfig) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer("llama-agent")}, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "llama-agent"
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, err
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdk)

	return &Provider{sdk: sdk, tracer: sdk.Tracer("llama-agent")}, nil
}

// Tracer returns the tracer to start spans from.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes and stops the exporter, if one is active.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}
