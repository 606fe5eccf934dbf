package metrics

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "cradle/task"

// Tracer wraps the OTel SDK's trace half only; metrics are owned entirely
// by the prometheus Collector, so no meter provider is created here.
type Tracer struct {
	tp *sdktrace.TracerProvider
}

// InitTracing wires an OTLP gRPC trace exporter when endpoint is non-empty.
// An empty endpoint returns a Tracer backed by the global noop provider, so
// callers never need to branch on whether tracing is enabled.
func InitTracing(ctx context.Context, endpoint, serviceName string, logger *zap.Logger) (*Tracer, error) {
	if endpoint == "" {
		logger.Info("tracing disabled, no OTEL_EXPORTER_OTLP_ENDPOINT set")
		return &Tracer{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing initialized", zap.String("endpoint", endpoint))
	return &Tracer{tp: tp}, nil
}

// Shutdown flushes and closes the exporter. Safe to call on a noop Tracer.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.tp == nil {
		return nil
	}
	if err := t.tp.Shutdown(ctx); err != nil {
		return errors.Join(fmt.Errorf("shutdown tracer provider: %w", err))
	}
	return nil
}

// StartReactSpan opens one span covering a single ReAct pass (one task,
// one iteration). The caller must end the returned span.
func StartReactSpan(ctx context.Context, taskID string, iteration int) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "react_pass",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.Int("react.iteration", iteration),
		),
	)
}
