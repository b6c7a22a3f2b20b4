// Package fatal implements the halt path for unrecoverable contract violations.
//
// A kernel panics when it detects pool exhaustion or a broken locking
// contract; continuing would run on corrupted state. Halt logs the diagnostic
// and panics with an *Error so tests can recover and inspect it.
package fatal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Error is the panic value carried by a halt.
type Error struct {
	// Op names the operation that detected the violation (e.g. "bget", "kfree").
	Op string
	// Msg describes the violation.
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("panic: %s: %s", e.Op, e.Msg)
}

// Halt logs the violation at error level and panics with an *Error.
func Halt(logger *slog.Logger, op, format string, args ...any) {
	e := &Error{Op: op, Msg: fmt.Sprintf(format, args...)}
	if logger != nil {
		logger.LogAttrs(context.Background(), slog.LevelError, "halt",
			slog.String("op", e.Op),
			slog.String("reason", e.Msg),
		)
	}
	panic(e)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger if l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
