package kcore

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with kcore-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a
// slog level. Unknown strings map to info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// WithCPU adds a cpu field to the logger.
func (l *Logger) WithCPU(id int) *Logger {
	return &Logger{
		Logger: l.Logger.With("cpu", id),
	}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", name),
	}
}

// LogBoot logs the outcome of Boot.
func (l *Logger) LogBoot(ctx context.Context, ncpu, pages, nbuf int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "boot failed",
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "boot completed",
		"ncpu", ncpu,
		"pages", pages,
		"nbuf", nbuf,
	)
}

// LogDiskError logs a failed block transfer.
func (l *Logger) LogDiskError(ctx context.Context, dev, blockno uint32, write bool, err error) {
	op := "read"
	if write {
		op = "write"
	}
	l.ErrorContext(ctx, "disk transfer failed",
		"op", op,
		"dev", dev,
		"blockno", blockno,
		"error", err,
	)
}
