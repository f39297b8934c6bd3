// Package telemetry registra el proveedor de trazas global del relay.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

// ShutdownFunc vacía y cierra el exportador.
type ShutdownFunc func(context.Context) error

// TracingOptions configura la exportación OTLP/HTTP.
type TracingOptions struct {
	Endpoint    string
	ServiceName string
	Environment string
}

// SetupTracing instala un TracerProvider con exportador OTLP/HTTP y el
// propagador W3C. Sin endpoint no toca el proveedor global y devuelve un
// shutdown vacío.
func SetupTracing(ctx context.Context, opts TracingOptions, logger *zap.Logger) (*sdktrace.TracerProvider, ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if opts.Endpoint == "" {
		logger.Info("tracing disabled (OTEL_EXPORTER_OTLP_ENDPOINT not set)")
		return nil, noop, nil
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "mr-relay"
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opts.Endpoint))
	if err != nil {
		return nil, noop, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(opts.ServiceName),
			attribute.String("environment", opts.Environment),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	logger.Info("tracing enabled", zap.String("endpoint", opts.Endpoint), zap.String("service", opts.ServiceName))
	return tp, tp.Shutdown, nil
}
