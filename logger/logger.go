//go:build linux

package logger

import (
	"log/slog"
	"os"
)

/**
 * Represents a log format.
 */
type LogFormat int

/**
 * Supported log formats.
 */
const (
	LogText LogFormat = iota
	LogJSON
)

/**
 * Logger options.
 */
type LoggerOpts struct {
	LogLevel  slog.Level
	LogFormat LogFormat
}

/**
 * The global logger instance.
 */
var Log *slog.Logger

/**
 * Creates a global structured logger.
 * @param opts the logger options.
 * @param fields extra context fields attached to every record alongside the
 *   process id (e.g. a container identifier), appended by the caller that
 *   knows what it's logging about.
 * @return the created logger instance.
 */
func CreateLogger(opts *LoggerOpts, fields ...any) *slog.Logger {
	var logHandler slog.Handler

	if Log != nil {
		return Log
	}

	handlerOpts := &slog.HandlerOptions{
		Level: opts.LogLevel,
	}

	// Choose the log format.
	if opts.LogFormat == LogText {
		logHandler = slog.NewTextHandler(os.Stdout, handlerOpts)
	} else {
		logHandler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	}

	// Create a new structured logger.
	logger := slog.New(logHandler)

	// Add context fields: process id first, then whatever the caller supplied.
	ctxFields := append([]any{slog.Int("pid", os.Getpid())}, fields...)
	Log = logger.With(ctxFields...)

	// Set as the default logger.
	slog.SetDefault(Log)

	return Log
}
