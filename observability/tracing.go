// Package observability wires OpenTelemetry tracing and metrics plus slog
// logging for the travel assistant.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Span names for one conversational turn.
const (
	SpanTurn     = "inquiry.turn"
	SpanClassify = "inquiry.classify"
	SpanDispatch = "inquiry.dispatch"
)

// InstrumentationName is the tracer and meter scope used across the module.
const InstrumentationName = "github.com/scttfrdmn/travelrouter"

var globalTracerProvider *sdktrace.TracerProvider

// InitTracing initializes OpenTelemetry tracing. An empty otlpEndpoint skips
// the OTLP exporter; consoleExport pretty-prints spans to stdout.
func InitTracing(serviceName string, otlpEndpoint string, consoleExport bool) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var spanProcessors []sdktrace.SpanProcessor

	if otlpEndpoint != "" {
		exporter, err := otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpoint(otlpEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		spanProcessors = append(spanProcessors, sdktrace.NewBatchSpanProcessor(exporter))
	}

	if consoleExport {
		exporter, err := stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		spanProcessors = append(spanProcessors, sdktrace.NewBatchSpanProcessor(exporter))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
	)
	for _, processor := range spanProcessors {
		tp.RegisterSpanProcessor(processor)
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	globalTracerProvider = tp
	return tp, nil
}

// GetTracer returns a tracer from the current global tracer provider.
func GetTracer(name string) trace.Tracer {
	// Resolved on every call so tests can swap the provider.
	return otel.Tracer(name)
}

// ExtractHTTP returns ctx carrying the W3C trace context found in headers.
func ExtractHTTP(ctx context.Context, header http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}

// InjectHTTP writes the W3C trace context of ctx into header.
func InjectHTTP(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

// Shutdown flushes and stops the tracer provider installed by InitTracing.
func Shutdown(ctx context.Context) error {
	if globalTracerProvider != nil {
		return globalTracerProvider.Shutdown(ctx)
	}
	return nil
}
