// Package observability provides structured logging, metrics and tracing
// for diagram generation.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Log formats accepted by NewLogger.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// NewLogger returns a logger writing to stderr in the given format.
// Unknown formats fall back to JSON.
func NewLogger(format string, level slog.Level) *slog.Logger {
	return newLogger(os.Stderr, format, level)
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, FormatText) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps debug/info/warn/error to a slog level. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EnrichLogger adds generation context to a logger.
// Returns a new logger with run_id and stage fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "call_model")
//	enriched.Info("calling provider") // includes run_id, stage
func EnrichLogger(logger *slog.Logger, runID, stage string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("stage", stage),
	)
}

// LogGenerationStart logs the start of a generation.
func LogGenerationStart(logger *slog.Logger, runID, mode, provider string) {
	if logger == nil {
		return
	}
	logger.Info("generation starting",
		slog.String("run_id", runID),
		slog.String("mode", mode),
		slog.String("provider", provider),
	)
}

// LogGenerationComplete logs a successful generation.
func LogGenerationComplete(logger *slog.Logger, runID, sessionID string, durationMs float64, nodes, edges int) {
	if logger == nil {
		return
	}
	logger.Info("generation completed",
		slog.String("run_id", runID),
		slog.String("session_id", sessionID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes", nodes),
		slog.Int("edges", edges),
	)
}

// LogGenerationError logs a failed generation.
func LogGenerationError(logger *slog.Logger, runID string, err error, durationMs float64, lastStage string) {
	if logger == nil {
		return
	}
	logger.Error("generation failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("stage", lastStage),
	)
}

// LogStageStart logs stage start.
func LogStageStart(logger *slog.Logger, stage string) {
	if logger == nil {
		return
	}
	logger.Debug("stage starting",
		slog.String("stage", stage),
	)
}

// LogStageComplete logs successful stage completion.
func LogStageComplete(logger *slog.Logger, stage string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("stage completed",
		slog.String("stage", stage),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogStageError logs a stage failure.
func LogStageError(logger *slog.Logger, stage string, err error) {
	if logger == nil {
		return
	}
	logger.Error("stage failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// LogSafeMode logs an incremental edit that fell back to the prior graph.
func LogSafeMode(logger *slog.Logger, sessionID, reason string, lost []string) {
	if logger == nil {
		return
	}
	logger.Warn("incremental edit fell back to safe mode",
		slog.String("session_id", sessionID),
		slog.String("reason", reason),
		slog.Any("lost_keywords", lost),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
