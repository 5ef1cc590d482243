// Package telemetry wires OpenTelemetry tracing for callrelay: the tracer
// provider, propagation, and the spans opened around provider calls and
// sessions.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the OTel instrumentation scope of every relay span.
const InstrumentationName = "github.com/AltairaLabs/callrelay"

// Config controls trace export. An empty Endpoint leaves the global
// provider untouched, so spans go to the no-op tracer.
type Config struct {
	Endpoint       string
	ServiceName    string
	ServiceVersion string

	// SampleRatio applies to root spans only; sessions joined from an
	// upstream trace follow the parent's decision. Values >= 1 sample all.
	SampleRatio float64
}

// ShutdownFunc flushes and stops the tracer provider installed by Setup.
type ShutdownFunc func(context.Context) error

// Tracer returns the relay tracer from tp, or from the global provider when
// tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// Setup installs propagation and, when cfg.Endpoint is set, a global
// OTLP/HTTP tracer provider. The returned ShutdownFunc is never nil.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	SetupPropagation()
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	tp, err := NewTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// NewTracerProvider creates a TracerProvider exporting to cfg.Endpoint.
// The caller owns Shutdown.
func NewTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := Resource(cfg)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
	), nil
}

// Resource describes this relay process. service.version is omitted when
// the build carries no version.
func Resource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}
	return res, nil
}

// Sampler returns a parent-based sampler whose root decision keeps ratio of
// new traces.
func Sampler(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// SetupPropagation configures the global propagator for W3C TraceContext,
// W3C Baggage, and AWS X-Ray headers.
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		xray.Propagator{},
	))
}
