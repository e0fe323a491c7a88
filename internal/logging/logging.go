// Package logging provides the structured logging facade used across
// the repository, backed by zap.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields holds structured log context.
type Fields map[string]any

// Logger is the logging interface components depend on.
type Logger interface {
	Debug(msg string, fields ...Fields)
	Info(msg string, fields ...Fields)
	Warn(msg string, fields ...Fields)
	Error(msg string, fields ...Fields)
	WithFields(fields Fields) Logger
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New creates a logger at the given level ("debug", "info", "warn",
// "error"). Unknown levels fall back to info.
func New(level string) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	return &zapLogger{s: l.Sugar()}
}

// NewDefaultLogger returns an info-level logger.
func NewDefaultLogger() Logger {
	return New("info")
}

// NewNop returns a logger that discards everything. Used in tests and
// as the fallback when no logger is wired.
func NewNop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func flatten(fields []Fields) []any {
	var kv []any
	for _, f := range fields {
		for k, v := range f {
			kv = append(kv, k, v)
		}
	}
	return kv
}

func (l *zapLogger) Debug(msg string, fields ...Fields) { l.s.Debugw(msg, flatten(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Fields)  { l.s.Infow(msg, flatten(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Fields)  { l.s.Warnw(msg, flatten(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Fields) { l.s.Errorw(msg, flatten(fields)...) }

func (l *zapLogger) WithFields(fields Fields) Logger {
	return &zapLogger{s: l.s.With(flatten([]Fields{fields})...)}
}
