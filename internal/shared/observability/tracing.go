package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer emits one span per bundling phase. It delegates to the global
// provider, so spans are no-ops until InitTracing installs an exporter.
var Tracer trace.Tracer = otel.Tracer("jspack")

// TracingConfig selects the OTLP collector. An empty Endpoint disables export.
type TracingConfig struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// InitTracing installs a batching OTLP/gRPC tracer provider. The returned
// shutdown flushes pending spans and is safe to call when tracing is off.
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	name := cfg.ServiceName
	if name == "" {
		name = "jspack"
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing enabled", "endpoint", cfg.Endpoint)
	return tp.Shutdown, nil
}

// StartPhase opens a span for a named pipeline phase and returns a func that
// ends it and records the phase duration histogram.
func StartPhase(ctx context.Context, phase string, attrs ...attribute.KeyValue) (context.Context, func()) {
	ctx, span := Tracer.Start(ctx, "jspack."+phase, trace.WithAttributes(attrs...))
	timer := newPhaseTimer(phase)
	return ctx, func() {
		timer()
		span.End()
	}
}
