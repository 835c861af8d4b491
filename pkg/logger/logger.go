// Package logger constructs the structured loggers used throughout fpindex.
// It centralizes the zap configuration so every subsystem logs in the same
// shape, tagged with the owning service name.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-configured *zap.SugaredLogger tagged with
// "service" = name. Callers that need a different minimum level should
// use NewWithLevel.
func New(service string) *zap.SugaredLogger {
	return NewWithLevel(service, zapcore.InfoLevel)
}

// NewWithLevel builds a *zap.SugaredLogger at the given minimum level,
// tagged with "service" = name.
func NewWithLevel(service string, level zapcore.Level) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		base = zap.NewNop()
	}

	return base.With(zap.String("service", service)).Sugar()
}

// Nop returns a logger that discards everything, for tests that don't care
// about log output.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
