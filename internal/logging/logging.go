// Package logging builds the structured loggers shared by every component.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New creates a [log.Logger] writing to w with timestamps enabled.
// The writer defaults to [os.Stderr].
func New(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true})
}

// NewWithLevel creates a logger and applies the named level.
// Unknown level names fall back to info.
func NewWithLevel(w io.Writer, level string) *log.Logger {
	l := New(w)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// With creates a child logger with the given key-value pairs on every entry.
func With(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// Discard returns a logger that drops everything. Components use it when
// they are constructed without one.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// Redact shortens a secret to a short prefix suitable for logs.
func Redact(secret string) string {
	const keep = 6
	if len(secret) <= keep {
		return "***"
	}
	return secret[:keep] + "..."
}
