package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tbourn/assistant-core/internal/config"
)

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func enabledCfg(name string, insecure bool) config.Config {
	return config.Config{
		DB: config.DBConfig{Driver: "sqlite"},
		OTEL: config.OTELConfig{
			Enabled:     true,
			Insecure:    insecure,
			Endpoint:    "localhost:4317",
			ServiceName: name,
			Environment: "test",
			SampleRatio: 1.0,
		},
	}
}

func TestSetupOTel_Disabled_NoOp(t *testing.T) {
	preserveOTelGlobals(t)
	prev := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.Config{}, "v0.0.0")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
	if otel.GetTracerProvider() != prev {
		t.Fatal("disabled tracing replaced the provider")
	}
}

func TestSetupOTel_InstallsProviderAndPropagator(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		preserveOTelGlobals(t)

		shutdown, err := SetupOTel(context.Background(), enabledCfg("assistant-core-test", insecure), "v1.2.3")
		if err != nil {
			t.Fatalf("insecure=%v: unexpected err: %v", insecure, err)
		}
		if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
			t.Fatalf("insecure=%v: expected *sdktrace.TracerProvider", insecure)
		}

		carrier := propagation.MapCarrier{}
		ctx, span := StartSpan(context.Background(), "test", "inject")
		otel.GetTextMapPropagator().Inject(ctx, carrier)
		span.End()
		if carrier.Get("traceparent") == "" {
			t.Fatalf("insecure=%v: traceparent not injected", insecure)
		}

		ct, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		_ = shutdown(ct)
		cancel()
	}
}

func TestSetupOTel_SeamErrors_LeaveGlobalsIntact(t *testing.T) {
	tests := []struct {
		name  string
		patch func(t *testing.T)
	}{
		{"exporter", func(t *testing.T) {
			orig := newOTLPExporterFn
			t.Cleanup(func() { newOTLPExporterFn = orig })
			newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
				return nil, errors.New("boom-exporter")
			}
		}},
		{"resource", func(t *testing.T) {
			orig := newServiceResourceFn
			t.Cleanup(func() { newServiceResourceFn = orig })
			newServiceResourceFn = func(context.Context, ...attribute.KeyValue) (*resource.Resource, error) {
				return nil, errors.New("boom-resource")
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			preserveOTelGlobals(t)
			tc.patch(t)

			prevTP := otel.GetTracerProvider()
			prevProp := otel.GetTextMapPropagator()
			if _, err := SetupOTel(context.Background(), enabledCfg("svc", true), "v0"); err == nil {
				t.Fatal("expected error, got nil")
			}
			if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
				t.Fatal("globals changed on failure")
			}
		})
	}
}

func TestServiceAttributes(t *testing.T) {
	cfg := enabledCfg("assistant-core", true)
	cfg.DB.Driver = "postgres"
	cfg.OTEL.Environment = "staging"

	got := map[attribute.Key]string{}
	for _, kv := range serviceAttributes(cfg, "v1.4.0") {
		got[kv.Key] = kv.Value.Emit()
	}
	want := map[attribute.Key]string{
		"service.name":           "assistant-core",
		"service.namespace":      ServiceNamespace,
		"service.version":        "v1.4.0",
		"deployment.environment": "staging",
		"assistant.store.driver": "postgres",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %q, want %q (all: %v)", k, got[k], v, got)
		}
	}

	cfg.OTEL.Environment = ""
	for _, kv := range serviceAttributes(cfg, "v1.4.0") {
		if kv.Key == "deployment.environment" {
			t.Fatalf("empty environment exported: %v", kv)
		}
	}
}

func TestSetupOTel_ResourceCarriesServiceAttributes(t *testing.T) {
	preserveOTelGlobals(t)
	var seen []attribute.KeyValue
	orig := newServiceResourceFn
	t.Cleanup(func() { newServiceResourceFn = orig })
	newServiceResourceFn = func(ctx context.Context, attrs ...attribute.KeyValue) (*resource.Resource, error) {
		seen = attrs
		return orig(ctx, attrs...)
	}

	shutdown, err := SetupOTel(context.Background(), enabledCfg("assistant-core", true), "v2")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	ct, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_ = shutdown(ct)

	var env bool
	for _, kv := range seen {
		if kv.Key == "deployment.environment" && kv.Value.AsString() == "test" {
			env = true
		}
	}
	if !env {
		t.Fatalf("resource attributes = %v", seen)
	}
}

func TestStartSpan_NameScopeAndAttributes(t *testing.T) {
	preserveOTelGlobals(t)
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	_, span := StartSpan(context.Background(), "services/RunService", "TryStart",
		attribute.String("run.key", "daily"))
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d", len(ended))
	}
	got := ended[0]
	if got.Name() != "services/RunService.TryStart" {
		t.Fatalf("span name = %q", got.Name())
	}
	if got.InstrumentationScope().Name != ScopePrefix+"services/RunService" {
		t.Fatalf("scope = %q", got.InstrumentationScope().Name)
	}
	var found bool
	for _, kv := range got.Attributes() {
		if kv.Key == "run.key" && kv.Value.AsString() == "daily" {
			found = true
		}
	}
	if !found {
		t.Fatalf("attributes = %v", got.Attributes())
	}
}
