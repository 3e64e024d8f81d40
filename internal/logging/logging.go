// Package logging provides structured logging using Go's slog package.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/FocuswithJustin/standoff/core/errors"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// DocumentIDKey is the context key for the document being processed.
	DocumentIDKey ContextKey = "document_id"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with a default logger (JSON format, Info level)
	InitLogger(LevelInfo, FormatJSON)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// ParseLevel maps a flag value (debug, info, warn, error) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, errors.Wrapf(errors.ErrInvalidInput, "unknown log level %q", s)
}

// ParseFormat maps a flag value (json, text) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json", "":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	}
	return FormatJSON, errors.Wrapf(errors.ErrInvalidInput, "unknown log format %q", s)
}

// InitLogger initializes the global logger with the specified level and
// format. Logs go to stderr so command output on stdout stays clean.
func InitLogger(level Level, format Format) {
	InitLoggerTo(os.Stderr, level, format)
}

// InitLoggerTo is InitLogger with an explicit destination.
func InitLoggerTo(w io.Writer, level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// WithDocumentID adds a document id to the context.
func WithDocumentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, DocumentIDKey, id)
}

// GetDocumentID retrieves the document id from the context.
func GetDocumentID(ctx context.Context) string {
	if id, ok := ctx.Value(DocumentIDKey).(string); ok {
		return id
	}
	return ""
}

// LoggerFromContext returns a logger with context values attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	if id := GetDocumentID(ctx); id != "" {
		logger = logger.With("document_id", id)
	}
	return logger
}

// Helper functions for common logging patterns

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// DebugContext logs a debug message with context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Debug(msg, args...)
}

// InfoContext logs an info message with context.
func InfoContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Info(msg, args...)
}

// WarnContext logs a warning message with context.
func WarnContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Warn(msg, args...)
}

// ErrorContext logs an error message with context.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	LoggerFromContext(ctx).Error(msg, args...)
}

// DocumentLoaded logs a document entering the system.
func DocumentLoaded(source, documentID string, length int, args ...any) {
	allArgs := []any{
		"source", source,
		"document_id", documentID,
		"length", length,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("document_loaded", allArgs...)
}

// ChangeApplied logs a single change record at debug level.
func ChangeApplied(command, set string, id int, args ...any) {
	allArgs := []any{
		"command", command,
		"set", set,
		"id", id,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("change_applied", allArgs...)
}

// ReplayFinished logs the outcome of a replay.
func ReplayFinished(ctx context.Context, records int, duration time.Duration, err error, args ...any) {
	allArgs := []any{
		"records", records,
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	if err != nil {
		allArgs = append(allArgs, "error", err.Error())
		LoggerFromContext(ctx).Error("replay_finished", allArgs...)
		return
	}
	LoggerFromContext(ctx).Info("replay_finished", allArgs...)
}

// PipelineRun logs one annotator run over a batch of documents.
func PipelineRun(ctx context.Context, annotator string, documents int, duration time.Duration, args ...any) {
	allArgs := []any{
		"annotator", annotator,
		"documents", documents,
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Info("pipeline_run", allArgs...)
}

// AnnotatorError logs an annotator failure.
func AnnotatorError(ctx context.Context, annotator, operation string, err error, args ...any) {
	allArgs := []any{
		"annotator", annotator,
		"operation", operation,
		"error", err.Error(),
	}
	allArgs = append(allArgs, args...)
	LoggerFromContext(ctx).Error("annotator_error", allArgs...)
}

// StoreOpened logs a change log store becoming available.
func StoreOpened(driver, stream string, records int, args ...any) {
	allArgs := []any{
		"driver", driver,
		"stream", stream,
		"records", records,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("store_opened", allArgs...)
}
