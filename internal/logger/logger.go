package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the scraper. Every call carries a message plus one
// object logged under the given key, so log lines stay greppable by event name.
type Logger interface {
	DebugObj(msg, key string, obj any)
	InfoObj(msg, key string, obj any)
	WarnObj(msg, key string, obj any)
	ErrorObj(msg, key string, obj any)
	Sync() error
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) DebugObj(string, string, any) {}
func (NopLogger) InfoObj(string, string, any)  {}
func (NopLogger) WarnObj(string, string, any)  {}
func (NopLogger) ErrorObj(string, string, any) {}
func (NopLogger) Sync() error                  { return nil }

type zapLogger struct {
	z *zap.Logger
}

// New builds a zap backed Logger. format is "json" or "console"; level is any zap level name.
func New(level, format string) (Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &zapLogger{z: z}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) Logger {
	if z == nil {
		return NopLogger{}
	}
	return &zapLogger{z: z}
}

func (l *zapLogger) DebugObj(msg, key string, obj any) { l.z.Debug(msg, zap.Any(key, obj)) }
func (l *zapLogger) InfoObj(msg, key string, obj any)  { l.z.Info(msg, zap.Any(key, obj)) }
func (l *zapLogger) WarnObj(msg, key string, obj any)  { l.z.Warn(msg, zap.Any(key, obj)) }
func (l *zapLogger) ErrorObj(msg, key string, obj any) { l.z.Error(msg, zap.Any(key, obj)) }
func (l *zapLogger) Sync() error                       { return l.z.Sync() }

// Ensure returns log, or a NopLogger when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return NopLogger{}
	}
	return log
}
