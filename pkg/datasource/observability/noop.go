package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

// RecordAdvance does nothing.
func (NoopMetrics) RecordAdvance(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordSeek does nothing.
func (NoopMetrics) RecordSeek(_ context.Context, _ string, _ error) {}

// RecordConfigResolution does nothing.
func (NoopMetrics) RecordConfigResolution(_ context.Context, _ int, _ time.Duration, _ error) {}

// RecordRunLoad does nothing.
func (NoopMetrics) RecordRunLoad(_ context.Context, _ string, _ bool) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartLoadSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartLoadSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartResolveSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartResolveSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartSeekSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartSeekSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
