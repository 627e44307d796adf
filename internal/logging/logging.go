// Package logging provides the structured-logging interface every core
// component depends on, generalized from the teacher's
// internal/storage/relationaldb.Logger interface so components never
// import a concrete logging library directly.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the dependency-injected logging interface. Components accept
// this, never a concrete zerolog.Logger, so tests can swap in a no-op or
// buffering implementation.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	With(component string) Logger
}

// zerologLogger adapts zerolog.Logger to the Logger interface.
type zerologLogger struct {
	z zerolog.Logger
}

// New builds a zerolog-backed Logger writing to w at the given level.
func New(w io.Writer, level zerolog.Level) Logger {
	if w == nil {
		w = os.Stderr
	}
	z := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &zerologLogger{z: z}
}

// NewConsole builds a human-readable console logger, suitable for CLI use.
func NewConsole(debug bool) Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	z := zerolog.New(console).Level(level).With().Timestamp().Logger()
	return &zerologLogger{z: z}
}

func (l *zerologLogger) event(e *zerolog.Event, msg string, fields ...interface{}) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, fields[i+1])
	}
	e.Msg(msg)
}

func (l *zerologLogger) Debug(msg string, fields ...interface{}) {
	l.event(l.z.Debug(), msg, fields...)
}

func (l *zerologLogger) Info(msg string, fields ...interface{}) {
	l.event(l.z.Info(), msg, fields...)
}

func (l *zerologLogger) Warn(msg string, fields ...interface{}) {
	l.event(l.z.Warn(), msg, fields...)
}

func (l *zerologLogger) Error(msg string, fields ...interface{}) {
	l.event(l.z.Error(), msg, fields...)
}

func (l *zerologLogger) With(component string) Logger {
	return &zerologLogger{z: l.z.With().Str("component", component).Logger()}
}

// NoOp is a Logger that discards everything; used in tests.
type noOpLogger struct{}

func (noOpLogger) Debug(string, ...interface{})  {}
func (noOpLogger) Info(string, ...interface{})   {}
func (noOpLogger) Warn(string, ...interface{})   {}
func (noOpLogger) Error(string, ...interface{})  {}
func (n noOpLogger) With(string) Logger          { return n }

// NoOp returns a Logger that discards all output.
func NoOp() Logger { return noOpLogger{} }
