// Package observability wires OpenTelemetry tracing and the Prometheus
// collectors that count claim outcomes.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/assistant-core/internal/config"
)

// ScopePrefix prefixes the instrumentation scope of every tracer obtained
// through StartSpan.
const ScopePrefix = "github.com/tbourn/assistant-core/"

// ServiceNamespace groups the processes of this system in trace backends.
const ServiceNamespace = "assistant"

// Test seams.
var (
	newOTLPClient = otlptracegrpc.NewClient

	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return otlptrace.New(ctx, client)
	}

	newServiceResourceFn = func(ctx context.Context, attrs ...attribute.KeyValue) (*resource.Resource, error) {
		return resource.New(
			ctx,
			resource.WithAttributes(attrs...),
			resource.WithFromEnv(),
			resource.WithHost(),
			resource.WithProcessRuntimeName(),
		)
	}
)

// serviceAttributes describes this process: who it is, where it runs and
// which store backs it. OTEL_RESOURCE_ATTRIBUTES may add to these.
func serviceAttributes(cfg config.Config, version string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.OTEL.ServiceName),
		semconv.ServiceNamespace(ServiceNamespace),
		semconv.ServiceVersion(version),
		attribute.String("assistant.store.driver", cfg.DB.Driver),
	}
	if cfg.OTEL.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.OTEL.Environment))
	}
	return attrs
}

// SetupOTel installs a global tracer provider exporting over OTLP/gRPC and
// returns its shutdown function. When tracing is disabled the global no-op
// provider stays in place and shutdown does nothing. Nothing global changes
// when setup fails.
func SetupOTel(ctx context.Context, cfg config.Config, version string) (func(context.Context) error, error) {
	oc := cfg.OTEL
	if !oc.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := newServiceResourceFn(ctx, serviceAttributes(cfg, version)...)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(oc.Endpoint)}
	if oc.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	exp, err := newOTLPExporterFn(ctx, newOTLPClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(oc.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	log.Info().
		Str("endpoint", oc.Endpoint).
		Str("environment", oc.Environment).
		Float64("sample_ratio", oc.SampleRatio).
		Msg("tracing enabled")
	return tp.Shutdown, nil
}

// StartSpan starts an internal span named "<component>.<name>" on the
// tracer of component.
func StartSpan(ctx context.Context, component, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(ScopePrefix+component).Start(ctx, component+"."+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}
