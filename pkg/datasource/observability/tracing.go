package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("datasource")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartLoadSpan starts a span covering a run load, fallbacks included.
	StartLoadSpan(ctx context.Context, source, sessionID string) (context.Context, trace.Span)

	// StartResolveSpan starts a span for one configuration resolution.
	StartResolveSpan(ctx context.Context, source string) (context.Context, trace.Span)

	// StartSeekSpan starts a span for a seek.
	StartSeekSpan(ctx context.Context, target string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses the global OTel tracer
// provider. Configure it with otel.SetTracerProvider before use.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartLoadSpan starts a span for a run load.
func (m *otelSpanManager) StartLoadSpan(ctx context.Context, source, sessionID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "datasource.load",
		trace.WithAttributes(
			attribute.String("datasource.source", source),
			attribute.String("session.id", sessionID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartResolveSpan starts a span for a configuration resolution.
func (m *otelSpanManager) StartResolveSpan(ctx context.Context, source string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "datasource.config.resolve",
		trace.WithAttributes(
			attribute.String("datasource.source", source),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartSeekSpan starts a span for a seek.
func (m *otelSpanManager) StartSeekSpan(ctx context.Context, target string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "datasource.seek",
		trace.WithAttributes(
			attribute.String("seek.target", target),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
