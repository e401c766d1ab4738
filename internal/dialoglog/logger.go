// Package dialoglog provides configurable leveled logging for dialogd.
// It keeps the call-site shape of a hand-rolled leveled logger
// (Debug/Info/Warn/Error/With) while delegating to zap underneath, so every
// component logs through the same narrow interface regardless of backend.
package dialoglog

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a narrow, leveled logging facade backed by a zap.SugaredLogger.
type Logger struct {
	s *zap.SugaredLogger
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the process-wide default logger from LOG_LEVEL.
// Environment variables:
//   - LOG_LEVEL: debug, info, warn, error. Default: info.
func Init() {
	once.Do(func() {
		defaultLogger = New(levelFromEnv())
	})
}

func levelFromEnv() zapcore.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a Logger at the given level, JSON-encoded to stderr (zap's
// production config output).
func New(level zapcore.Level) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	if level == zapcore.DebugLevel {
		cfg.Development = true
	}
	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Config build only fails on an invalid encoder/level; fall back to
		// a bare logger rather than losing all diagnostics at startup.
		zl = zap.NewExample()
	}
	return &Logger{s: zl.Sugar()}
}

// GetDefault returns the process-wide default logger, initializing it from
// the environment on first use.
func GetDefault() *Logger {
	if defaultLogger == nil {
		Init()
	}
	return defaultLogger
}

// With returns a child logger with the given key/value pairs attached to
// every subsequent line, e.g. l.With("call_id", id).
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.s.Errorf(format, args...) }

// Sync flushes any buffered log entries; call before process exit.
func (l *Logger) Sync() error { return l.s.Sync() }

// Package-level convenience wrappers over the default logger.

func With(kv ...interface{}) *Logger               { return GetDefault().With(kv...) }
func Debug(format string, args ...interface{})      { GetDefault().Debug(format, args...) }
func Info(format string, args ...interface{})       { GetDefault().Info(format, args...) }
func Warn(format string, args ...interface{})       { GetDefault().Warn(format, args...) }
func Error(format string, args ...interface{})      { GetDefault().Error(format, args...) }
