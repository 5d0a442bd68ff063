// Tracer bootstraps an OpenTelemetry TracerProvider exporting spans over
// OTLP/HTTP, and provides a StartSpan helper used at each component
// boundary (C1 parse -> C3 append -> C4 triage -> C6 dispatch).
//
// Grounded on bff-service/middleware/tracing.go's tracer.Start +
// attribute + RecordError shape, built directly on
// go.opentelemetry.io/otel/sdk/trace instead of the contrib otelhttp
// wrapper bff-service uses, since Switchboard's span boundaries are
// component calls rather than inbound HTTP handlers end to end.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "switchboard"

// InitTracing wires a TracerProvider exporting to an OTLP/HTTP collector
// at endpoint (e.g. "localhost:4318"). Returns a shutdown func the caller
// defers. If endpoint is empty, tracing runs with a no-op provider.
func InitTracing(ctx context.Context, endpoint, serviceVersion string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure()))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(tracerName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// StartSpan opens a span named for a Switchboard component boundary
// (e.g. "triage.evaluate", "dispatch.target").
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, spanName)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpanWithError records err on span (if non-nil) before ending it;
// call via defer right after StartSpan.
func EndSpanWithError(span trace.Span, err *error) {
	if err != nil && *err != nil {
		span.RecordError(*err)
	}
	span.End()
}

// RequestIDAttr is the attribute key used to correlate a span with a
// message_inbox request_id across every component boundary.
func RequestIDAttr(requestID string) attribute.KeyValue {
	return attribute.String("switchboard.request_id", requestID)
}

func DurationAttr(d time.Duration) attribute.KeyValue {
	return attribute.Int64("switchboard.duration_ms", d.Milliseconds())
}
