// Package logging provides the structured logger every component in
// this module depends on, plus context propagation so a request-scoped
// logger (carrying instance/org/user fields) flows through command,
// query, and projection code without a parameter on every call.
package logging

import (
	"context"

	"go.uber.org/zap"
)

// Logger is the common logging interface every package in this module
// depends on instead of *zap.SugaredLogger directly.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)

	// WithFields returns a new Logger carrying additional structured
	// context (alternating key/value pairs); the receiver is unchanged.
	WithFields(fields ...any) Logger

	Sync() error
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a production zap.Logger and wraps it as a Logger. Set
// development to true for console-friendly, human-readable output.
func New(development bool) (Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: z.Sugar()}, nil
}

func (l *zapLogger) Debug(args ...any)                  { l.sugar.Debug(args...) }
func (l *zapLogger) Debugf(format string, args ...any)  { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Info(args ...any)                   { l.sugar.Info(args...) }
func (l *zapLogger) Infof(format string, args ...any)   { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warn(args ...any)                   { l.sugar.Warn(args...) }
func (l *zapLogger) Warnf(format string, args ...any)   { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Error(args ...any)                  { l.sugar.Error(args...) }
func (l *zapLogger) Errorf(format string, args ...any)  { l.sugar.Errorf(format, args...) }
func (l *zapLogger) Fatal(args ...any)                  { l.sugar.Fatal(args...) }
func (l *zapLogger) Fatalf(format string, args ...any)  { l.sugar.Fatalf(format, args...) }

func (l *zapLogger) WithFields(fields ...any) Logger {
	return &zapLogger{sugar: l.sugar.With(fields...)}
}

func (l *zapLogger) Sync() error { return l.sugar.Sync() }

type ctxKey struct{}

// ContextWithLogger returns a child context carrying logger, retrievable
// via FromContext.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// noop satisfies Logger without emitting anything, used as FromContext's
// fallback so callers never need a nil check.
type noop struct{}

func (noop) Debug(args ...any)                 {}
func (noop) Debugf(format string, args ...any) {}
func (noop) Info(args ...any)                  {}
func (noop) Infof(format string, args ...any)  {}
func (noop) Warn(args ...any)                  {}
func (noop) Warnf(format string, args ...any)  {}
func (noop) Error(args ...any)                 {}
func (noop) Errorf(format string, args ...any) {}
func (noop) Fatal(args ...any)                 {}
func (noop) Fatalf(format string, args ...any) {}
func (noop) WithFields(fields ...any) Logger   { return noop{} }
func (noop) Sync() error                       { return nil }

// FromContext retrieves the logger stored by ContextWithLogger, or a
// no-op Logger if none was stored.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return noop{}
}
