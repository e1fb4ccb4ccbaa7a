package logging

import (
	corelogger "github.com/platformbuilds/opsagents/pkg/logger"
	"go.uber.org/zap"
)

// Logger is the minimal logging interface used across internal
// packages. It mirrors pkg/logger so internal code depends on this
// package rather than on the concrete core logger.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
}

// New returns a zap-backed no-op Logger, a convenience for tests and
// small tools. Production callers wrap the core logger with
// FromCoreLogger instead.
func New() Logger {
	return &zapAdapter{logger: zap.NewNop()}
}

// FromCoreLogger adapts the project core logger to the internal
// logging interface.
func FromCoreLogger(core corelogger.Logger) Logger {
	if core == nil {
		return New()
	}
	return &coreAdapter{core: core}
}

// ExtractZapLogger obtains an underlying *zap.Logger from any value
// exposing a ZapLogger() method, falling back to a no-op logger.
func ExtractZapLogger(v interface{}) *zap.Logger {
	if zl, ok := v.(interface{ ZapLogger() *zap.Logger }); ok {
		return zl.ZapLogger()
	}
	if za, ok := v.(*zapAdapter); ok {
		return za.logger
	}
	return zap.NewNop()
}

type coreAdapter struct {
	core corelogger.Logger
}

func (c *coreAdapter) Info(msg string, fields ...interface{})  { c.core.Info(msg, fields...) }
func (c *coreAdapter) Error(msg string, fields ...interface{}) { c.core.Error(msg, fields...) }
func (c *coreAdapter) Warn(msg string, fields ...interface{})  { c.core.Warn(msg, fields...) }
func (c *coreAdapter) Debug(msg string, fields ...interface{}) { c.core.Debug(msg, fields...) }
func (c *coreAdapter) Fatal(msg string, fields ...interface{}) { c.core.Fatal(msg, fields...) }

func (c *coreAdapter) ZapLogger() *zap.Logger {
	if zl, ok := c.core.(interface{ ZapLogger() *zap.Logger }); ok {
		return zl.ZapLogger()
	}
	return zap.NewNop()
}

type zapAdapter struct {
	logger *zap.Logger
}

func (z *zapAdapter) Info(msg string, fields ...interface{}) {
	z.logger.Sugar().Infow(msg, fields...)
}

func (z *zapAdapter) Error(msg string, fields ...interface{}) {
	z.logger.Sugar().Errorw(msg, fields...)
}

func (z *zapAdapter) Warn(msg string, fields ...interface{}) {
	z.logger.Sugar().Warnw(msg, fields...)
}

func (z *zapAdapter) Debug(msg string, fields ...interface{}) {
	z.logger.Sugar().Debugw(msg, fields...)
}

func (z *zapAdapter) Fatal(msg string, fields ...interface{}) {
	z.logger.Sugar().Fatalw(msg, fields...)
}
