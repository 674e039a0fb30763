// Package observability provides structured logging, metrics and tracing
// helpers for data source sessions.
//
// Logging goes through log/slog. Metrics and tracing use OpenTelemetry and
// fall back to no-op implementations when disabled. Every helper accepts a
// nil logger.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds session context to a logger.
// Returns a new logger with session_id and source fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, sessionID, "exp=xpptut15:run=54:smd")
//	enriched.Info("loading") // includes session_id, source
func EnrichLogger(logger *slog.Logger, sessionID, source string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("session_id", sessionID),
		slog.String("source", source),
	)
}

// LogRunLoad logs a completed run load.
func LogRunLoad(logger *slog.Logger, mode string, aliases int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("run loaded",
		slog.String("mode", mode),
		slog.Int("aliases", aliases),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRunFallback logs a switch from one access mode to another.
func LogRunFallback(logger *slog.Logger, from, to string, reason error) {
	if logger == nil {
		return
	}
	attrs := []any{
		slog.String("from", from),
		slog.String("to", to),
	}
	if reason != nil {
		attrs = append(attrs, slog.String("reason", reason.Error()))
	}
	logger.Warn("access mode fallback", attrs...)
}

// LogConfigResolved logs a configuration resolution.
func LogConfigResolved(logger *slog.Logger, aliases, groups, notes int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("configuration resolved",
		slog.Int("aliases", aliases),
		slog.Int("readout_groups", groups),
		slog.Int("notes", notes),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogConfigError logs a configuration that could not be resolved.
func LogConfigError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("configuration resolution failed",
		slog.String("error", err.Error()),
	)
}

// LogSeek logs a cursor seek.
func LogSeek(logger *slog.Logger, target string, step, event int) {
	if logger == nil {
		return
	}
	logger.Debug("cursor seek",
		slog.String("target", target),
		slog.Int("step", step),
		slog.Int("event", event),
	)
}

// LogExhausted logs the end of an event sequence.
func LogExhausted(logger *slog.Logger, events int) {
	if logger == nil {
		return
	}
	logger.Info("events exhausted",
		slog.Int("events", events),
	)
}

// LogSettingsReload logs a reload of detector settings. A non-nil err is
// logged at WARN level; the previous settings stay in effect.
func LogSettingsReload(logger *slog.Logger, path string, aliases int, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("settings reload failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Info("settings reloaded",
		slog.String("path", path),
		slog.Int("aliases", aliases),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
