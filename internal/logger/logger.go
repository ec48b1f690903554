package logger

import "KoordeDHT/internal/domain"

// Field is a structured key:value log field.
type Field struct {
	Key string
	Val any
}

// Logger is the minimal structured-logging interface used throughout the
// node: named sub-loggers, field binding, and leveled logging.
type Logger interface {
	Named(name string) Logger
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// F builds a Field concisely.
func F(key string, val any) Field { return Field{Key: key, Val: val} }

// FNode serializes a domain.Node into a readable structured field.
func FNode(key string, n domain.Node) Field {
	return Field{
		Key: key,
		Val: map[string]any{
			"id":   n.ID.String(),
			"addr": n.Addr,
		},
	}
}

// FResource serializes a domain.Resource into a readable structured field
// without leaking its full value at non-debug levels.
func FResource(key string, r domain.Resource) Field {
	return Field{
		Key: key,
		Val: map[string]any{
			"key":     r.Key.String(),
			"raw_key": r.RawKey,
		},
	}
}

// NopLogger implements Logger with no-op methods; the default when logging
// is disabled.
type NopLogger struct{}

func (l *NopLogger) Named(name string) Logger    { return l }
func (l *NopLogger) With(fields ...Field) Logger { return l }
func (l *NopLogger) Debug(msg string, fields ...Field) {}
func (l *NopLogger) Info(msg string, fields ...Field)  {}
func (l *NopLogger) Warn(msg string, fields ...Field)  {}
func (l *NopLogger) Error(msg string, fields ...Field) {}
