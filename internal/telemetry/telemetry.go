// Package telemetry wires OpenTelemetry tracing around the creative
// generation pipeline. Tracing is optional: without an OTLP endpoint,
// spans are no-ops.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "adpulse"

// Init configures the global tracer provider with an OTLP/gRPC exporter.
// The returned function flushes pending spans and must run on shutdown.
func Init(ctx context.Context, serviceName, otlpEndpoint string) (func(context.Context) error, error) {
	if otlpEndpoint == "" {
		slog.Info("telemetry disabled, no OTLP endpoint configured")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("0.1.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("telemetry initialized", "endpoint", otlpEndpoint)

	return tp.Shutdown, nil
}

// GenerationSpan traces one creative generation end to end: cache lookup,
// credit charge, provider call and the eventual outcome.
type GenerationSpan struct {
	span trace.Span
}

// StartGeneration opens a generation span. Before Init the global provider
// is a no-op, so callers never need to check whether tracing is on.
func StartGeneration(ctx context.Context, workspaceID, requestID string) (context.Context, GenerationSpan) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "creative.generate",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("request.id", requestID),
		),
	)
	return ctx, GenerationSpan{span: span}
}

// Provider records which upstream actually served the generation.
func (g GenerationSpan) Provider(provider, model string) {
	g.span.SetAttributes(
		attribute.String("gen.provider", provider),
		attribute.String("gen.model", model),
	)
}

// CacheHit marks the generation as answered from cache.
func (g GenerationSpan) CacheHit(hit bool) {
	g.span.SetAttributes(attribute.Bool("gen.cache_hit", hit))
}

// Credits records what the generation cost and the balance it left behind.
func (g GenerationSpan) Credits(charged, balance int64) {
	g.span.SetAttributes(
		attribute.Int64("credits.charged", charged),
		attribute.Int64("credits.balance", balance),
	)
}

// Fail marks the span failed and attaches the error.
func (g GenerationSpan) Fail(err error) {
	g.span.RecordError(err)
	g.span.SetStatus(codes.Error, err.Error())
}

func (g GenerationSpan) End() {
	g.span.End()
}

// TraceID returns the active trace ID for log correlation, or "" when the
// context carries no sampled span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
