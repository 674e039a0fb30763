package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records data source metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordAdvance records one cursor advance with its latency and outcome.
	// Exhaustion is not an error and should be passed as nil.
	RecordAdvance(ctx context.Context, mode string, duration time.Duration, err error)

	// RecordSeek records one seek.
	RecordSeek(ctx context.Context, mode string, err error)

	// RecordConfigResolution records a configuration resolution.
	RecordConfigResolution(ctx context.Context, aliases int, duration time.Duration, err error)

	// RecordRunLoad records a run load in the mode that finally served it.
	RecordRunLoad(ctx context.Context, mode string, success bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	advances       metric.Int64Counter
	advanceLatency metric.Float64Histogram
	seeks          metric.Int64Counter
	cursorErrors   metric.Int64Counter
	resolutions    metric.Int64Counter
	resolveLatency metric.Float64Histogram
	aliases        metric.Int64Histogram
	runLoads       metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("datasource")

	advances, err := meter.Int64Counter("datasource.cursor.advances",
		metric.WithDescription("Number of cursor advances"),
	)
	if err != nil {
		return nil, err
	}

	advanceLatency, err := meter.Float64Histogram("datasource.cursor.advance_latency_ms",
		metric.WithDescription("Cursor advance latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	seeks, err := meter.Int64Counter("datasource.cursor.seeks",
		metric.WithDescription("Number of cursor seeks"),
	)
	if err != nil {
		return nil, err
	}

	cursorErrors, err := meter.Int64Counter("datasource.cursor.errors",
		metric.WithDescription("Number of failed cursor operations"),
	)
	if err != nil {
		return nil, err
	}

	resolutions, err := meter.Int64Counter("datasource.config.resolutions",
		metric.WithDescription("Number of configuration resolutions"),
	)
	if err != nil {
		return nil, err
	}

	resolveLatency, err := meter.Float64Histogram("datasource.config.latency_ms",
		metric.WithDescription("Configuration resolution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	aliases, err := meter.Int64Histogram("datasource.config.aliases",
		metric.WithDescription("Number of aliases per resolved configuration"),
	)
	if err != nil {
		return nil, err
	}

	runLoads, err := meter.Int64Counter("datasource.run.loads",
		metric.WithDescription("Number of run loads"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		advances:       advances,
		advanceLatency: advanceLatency,
		seeks:          seeks,
		cursorErrors:   cursorErrors,
		resolutions:    resolutions,
		resolveLatency: resolveLatency,
		aliases:        aliases,
		runLoads:       runLoads,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses the global OTel
// meter provider. If initialization fails, returns a no-op recorder.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordAdvance records a cursor advance.
func (m *otelMetrics) RecordAdvance(ctx context.Context, mode string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.advances.Add(ctx, 1, attrs)
	m.advanceLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.cursorErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("op", "next"),
		))
	}
}

// RecordSeek records a seek.
func (m *otelMetrics) RecordSeek(ctx context.Context, mode string, err error) {
	m.seeks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("success", err == nil),
	))
	if err != nil {
		m.cursorErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("op", "seek"),
		))
	}
}

// RecordConfigResolution records a configuration resolution.
func (m *otelMetrics) RecordConfigResolution(ctx context.Context, aliases int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))
	m.resolutions.Add(ctx, 1, attrs)
	m.resolveLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err == nil {
		m.aliases.Record(ctx, int64(aliases))
	}
}

// RecordRunLoad records a run load.
func (m *otelMetrics) RecordRunLoad(ctx context.Context, mode string, success bool) {
	m.runLoads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	))
}
