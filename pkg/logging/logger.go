// Package logging wraps zap with the service's configuration and the child
// loggers used per component and per upload.
package logging

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger
type Logger struct {
	*zap.Logger
}

// Config holds logging configuration
type Config struct {
	// Level is one of debug, info, warn, error, dpanic, panic, fatal
	Level string
	// Format is json or console
	Format string
	// OutputPaths receive log entries; the CLI points these at stderr
	OutputPaths []string
	// ErrorOutputPaths receive internal logger errors
	ErrorOutputPaths []string
	// Development makes DPanic panic and switches to the development encoder
	Development      bool
	EnableCaller     bool
	EnableStacktrace bool
}

// DefaultConfig returns JSON logging at info level on stdout.
func DefaultConfig() Config {
	return Config{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// DevelopmentConfig returns console logging at debug level with callers and
// stack traces.
func DevelopmentConfig() Config {
	return Config{
		Level:            "debug",
		Format:           "console",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		Development:      true,
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// NewLogger builds a logger. An unknown level is an error.
func NewLogger(config Config) (*Logger, error) {
	level, err := parseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if config.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       config.Development,
		DisableCaller:     !config.EnableCaller,
		DisableStacktrace: !config.EnableStacktrace,
		Encoding:          config.Format,
		EncoderConfig:     encoderConfig,
		OutputPaths:       config.OutputPaths,
		ErrorOutputPaths:  config.ErrorOutputPaths,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return &Logger{logger}, nil
}

// NewNoOpLogger creates a logger that discards all logs
func NewNoOpLogger() *Logger {
	return &Logger{zap.NewNop()}
}

// parseLevel accepts zap's level names case-insensitively, plus "warning".
// An empty level is info.
func parseLevel(level string) (zapcore.Level, error) {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	default:
		parsed, err := zapcore.ParseLevel(l)
		if err != nil {
			return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", level)
		}
		return parsed, nil
	}
}

// With creates a child logger with additional fields
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{l.Logger.With(fields...)}
}

// Named creates a child logger with a name
func (l *Logger) Named(name string) *Logger {
	return &Logger{l.Logger.Named(name)}
}

// ForUpload returns a child logger scoped to one file upload.
func (l *Logger) ForUpload(uploadID, filename string) *Logger {
	return l.With(zap.String("upload_id", uploadID), zap.String("filename", filename))
}

// Component returns a named child logger tagged with its component.
func (l *Logger) Component(name string) *Logger {
	return &Logger{l.Logger.Named(name).With(zap.String("component", name))}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return NewNoOpLogger()
	}
	return l
}

// global backs L. Infrastructure built before the binary configures logging
// (chain, writer, breakers) picks up whatever is set at construction time.
var global atomic.Pointer[Logger]

func init() {
	global.Store(NewNoOpLogger())
}

// SetGlobal replaces the logger returned by L. A nil logger restores the
// no-op logger.
func SetGlobal(logger *Logger) {
	global.Store(OrNop(logger))
}

// L returns the global logger.
func L() *Logger {
	return global.Load()
}
