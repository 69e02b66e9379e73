package observe

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)

	// With returns a logger that adds the call metadata to every entry.
	With(meta CallMeta) Logger
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for Field{Key: key, Value: value}.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// ParseLogLevel maps debug, info, warn and error to zerolog levels.
// Anything else is info.
func ParseLogLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type zerologLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a JSON logger on stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a JSON logger on w.
// Writes are serialized, so w need not be safe for concurrent use.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	zl := zerolog.New(zerolog.SyncWriter(w)).
		Level(ParseLogLevel(level)).
		With().Timestamp().
		Logger()
	return &zerologLogger{zl: zl}
}

// FromZerolog adapts an existing zerolog logger.
func FromZerolog(zl zerolog.Logger) Logger {
	return &zerologLogger{zl: zl}
}

func (l *zerologLogger) With(meta CallMeta) Logger {
	c := l.zl.With()
	for _, kv := range []struct{ k, v string }{
		{"service", meta.Service},
		{"instance", meta.Instance},
		{"operation", meta.Operation},
		{"request_id", meta.RequestID},
		{"workflow", meta.Workflow},
		{"step", meta.Step},
	} {
		if kv.v != "" {
			c = c.Str(kv.k, kv.v)
		}
	}
	return &zerologLogger{zl: c.Logger()}
}

func (l *zerologLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, l.zl.Info(), msg, fields)
}

func (l *zerologLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, l.zl.Warn(), msg, fields)
}

func (l *zerologLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, l.zl.Error(), msg, fields)
}

func (l *zerologLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.write(ctx, l.zl.Debug(), msg, fields)
}

// write adds fields to ev and emits it. ev is nil when the level is disabled.
func (l *zerologLogger) write(ctx context.Context, ev *zerolog.Event, msg string, fields []Field) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		if isRedactedField(f.Key) {
			ev = ev.Str(f.Key, "[REDACTED]")
			continue
		}
		switch v := f.Value.(type) {
		case error:
			ev = ev.AnErr(f.Key, v)
		case string:
			ev = ev.Str(f.Key, v)
		default:
			ev = ev.Interface(f.Key, v)
		}
	}
	if ctx != nil {
		ev = ev.Ctx(ctx)
	}
	ev.Msg(msg)
}

var redacted = func() map[string]bool {
	m := make(map[string]bool, len(RedactedFields))
	for _, k := range RedactedFields {
		m[k] = true
	}
	return m
}()

func isRedactedField(key string) bool {
	return redacted[key]
}

type noopLogger struct{}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return noopLogger{} }

func (noopLogger) Info(context.Context, string, ...Field) {}

func (noopLogger) Warn(context.Context, string, ...Field) {}

func (noopLogger) Error(context.Context, string, ...Field) {}

func (noopLogger) Debug(context.Context, string, ...Field) {}

func (l noopLogger) With(CallMeta) Logger { return l }
