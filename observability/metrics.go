package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

var globalMeterProvider *sdkmetric.MeterProvider

// InitMetrics initializes OpenTelemetry metrics with Prometheus export. The
// exporter registers with the default Prometheus registry, so promhttp.Handler
// serves the result.
func InitMetrics(serviceName string) (*sdkmetric.MeterProvider, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	globalMeterProvider = provider
	return provider, nil
}

// GetMeter returns a meter from the current global meter provider.
func GetMeter(name string) metric.Meter {
	return otel.Meter(name)
}

// ShutdownMetrics flushes and stops the meter provider installed by InitMetrics.
func ShutdownMetrics(ctx context.Context) error {
	if globalMeterProvider != nil {
		return globalMeterProvider.Shutdown(ctx)
	}
	return nil
}

// Recorder reports classification decisions, collaborator failures and turn
// latency as spans, counters and log lines. A nil *Recorder records nothing.
type Recorder struct {
	logger               *slog.Logger
	tracer               trace.Tracer
	classifications      metric.Int64Counter
	classifierFailures   metric.Int64Counter
	collaboratorFailures metric.Int64Counter
	turnLatency          metric.Float64Histogram
}

// NewRecorder creates instruments on the global meter provider.
func NewRecorder(logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	meter := GetMeter(InstrumentationName)

	classifications, err := meter.Int64Counter(
		"travelrouter.classifications",
		metric.WithDescription("Classified utterances by path, rule and kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifications counter: %w", err)
	}

	classifierFailures, err := meter.Int64Counter(
		"travelrouter.classifier.failures",
		metric.WithDescription("LLM classifier failures by reason"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier failure counter: %w", err)
	}

	collaboratorFailures, err := meter.Int64Counter(
		"travelrouter.collaborator.failures",
		metric.WithDescription("Collaborator failures by collaborator and kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collaborator failure counter: %w", err)
	}

	turnLatency, err := meter.Float64Histogram(
		"travelrouter.turn.latency",
		metric.WithDescription("End-to-end latency of one conversational turn"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn latency histogram: %w", err)
	}

	return &Recorder{
		logger:               logger.With("component", "observability"),
		tracer:               GetTracer(InstrumentationName),
		classifications:      classifications,
		classifierFailures:   classifierFailures,
		collaboratorFailures: collaboratorFailures,
		turnLatency:          turnLatency,
	}, nil
}

// StartSpan opens an internal span. With a nil Recorder it returns ctx and
// the span already in it.
func (r *Recorder) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if r == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// Classification records how an utterance was classified. reason is empty
// unless the LLM path failed and rules took over.
func (r *Recorder) Classification(ctx context.Context, path, rule, kind, reason string) {
	if r == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("path", path),
		attribute.String("rule", rule),
		attribute.String("kind", kind),
	}
	r.classifications.Add(ctx, 1, metric.WithAttributes(attrs...))

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)

	if reason != "" {
		r.classifierFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		span.SetAttributes(attribute.String("failure_reason", reason))
		r.logger.WarnContext(ctx, "llm classifier failed, used rules",
			"reason", reason,
			"rule", rule,
			"kind", kind,
		)
		return
	}
	r.logger.DebugContext(ctx, "classified", "path", path, "rule", rule, "kind", kind)
}

// CollaboratorFailure records a failed collaborator call. The cause is logged
// and attached to the span; it is never shown to the user.
func (r *Recorder) CollaboratorFailure(ctx context.Context, collaborator, kind string, cause error) {
	if r == nil {
		return
	}

	r.collaboratorFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("collaborator", collaborator),
		attribute.String("kind", kind),
	))

	span := trace.SpanFromContext(ctx)
	if cause != nil {
		span.RecordError(cause)
	}
	span.SetStatus(codes.Error, kind)

	r.logger.WarnContext(ctx, "collaborator failed",
		"collaborator", collaborator,
		"kind", kind,
		"error", cause,
	)
}

// TurnLatency records the duration of one turn.
func (r *Recorder) TurnLatency(ctx context.Context, d time.Duration, kind string) {
	if r == nil {
		return
	}
	r.turnLatency.Record(ctx, float64(d.Microseconds())/1000.0,
		metric.WithAttributes(attribute.String("kind", kind)))
}
