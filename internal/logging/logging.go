// Package logging builds the zap loggers shared by every component.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console-encoded zap logger. Debug enables Debug-level
// output and stack traces; otherwise the logger stays at Info.
func New(debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = !debug
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		// fall back to a no-op logger rather than crash on logger setup
		return zap.NewNop()
	}

	return l
}

// Named returns a child logger scoped to a component name, or a no-op
// logger if base is nil.
func Named(base *zap.Logger, name string) *zap.Logger {
	if base == nil {
		return zap.NewNop()
	}

	return base.Named(name)
}
