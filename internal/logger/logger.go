// Package logger provides structured logging for the harvester on top of zap.
//
// Fields are passed as alternating key/value pairs:
//
//	log.Info("Shard written", "shard", name, "documents", n)
package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Interface is the logging capability handed to every component.
type Interface interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Fatal(msg string, fields ...any)
	With(fields ...any) Interface
	WithComponent(component string) Interface
	WithRun(runID string) Interface
	WithError(err error) Interface
	Sync() error
}

// Field keys shared across components.
const (
	FieldComponent = "component"
	FieldRunID     = "run_id"
	FieldError     = "error"
)

const developmentTimeLayout = "2006-01-02 15:04:05.000"

// Logger is the zap-backed Interface.
type Logger struct {
	zapLogger *zap.Logger
}

// New creates a logger writing to the configured outputs.
func New(config *Config) (Interface, error) {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := cfg.Level.zapLevel()

	sink, _, err := zap.Open(cfg.OutputPaths...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOutputPath, err)
	}

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	core := zapcore.NewCore(newEncoder(cfg), sink, level)
	return &Logger{zapLogger: zap.New(core, opts...)}, nil
}

// NewNoOp returns a logger that discards everything.
func NewNoOp() Interface {
	return &Logger{zapLogger: zap.NewNop()}
}

// NewObserved returns a logger recording entries at or above level in memory,
// for assertions in tests.
func NewObserved(level Level) (Interface, *observer.ObservedLogs) {
	zl, err := level.zapLevel()
	if err != nil {
		zl = zapcore.DebugLevel
	}
	core, logs := observer.New(zl)
	return &Logger{zapLogger: zap.New(core)}, logs
}

func newEncoder(cfg Config) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format(developmentTimeLayout))
		}
		encoderConfig.ConsoleSeparator = " | "
	}

	if cfg.Encoding == EncodingJSON {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...any) {
	l.zapLogger.Debug(msg, toZapFields(fields)...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...any) {
	l.zapLogger.Info(msg, toZapFields(fields)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...any) {
	l.zapLogger.Warn(msg, toZapFields(fields)...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...any) {
	l.zapLogger.Error(msg, toZapFields(fields)...)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(msg string, fields ...any) {
	l.zapLogger.Fatal(msg, toZapFields(fields)...)
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...any) Interface {
	return &Logger{zapLogger: l.zapLogger.With(toZapFields(fields)...)}
}

// WithComponent tags entries with the emitting component.
func (l *Logger) WithComponent(component string) Interface {
	return l.With(FieldComponent, component)
}

// WithRun tags entries with a harvest run ID.
func (l *Logger) WithRun(runID string) Interface {
	return l.With(FieldRunID, runID)
}

// WithError attaches an error to every entry.
func (l *Logger) WithError(err error) Interface {
	return l.With(FieldError, err)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}

// toZapFields converts alternating key/value pairs (or ready-made zap fields)
// into zap.Field values. A dangling key is kept with a nil value.
func toZapFields(fields []any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	zapFields := make([]zap.Field, 0, len(fields)/2+1)
	for i := 0; i < len(fields); i++ {
		switch field := fields[i].(type) {
		case zap.Field:
			zapFields = append(zapFields, field)
		case string:
			if i+1 >= len(fields) {
				zapFields = append(zapFields, zap.Any(field, nil))
				continue
			}
			if err, ok := fields[i+1].(error); ok {
				zapFields = append(zapFields, zap.NamedError(field, err))
			} else {
				zapFields = append(zapFields, zap.Any(field, fields[i+1]))
			}
			i++
		default:
			zapFields = append(zapFields, zap.Any(fmt.Sprintf("field_%d", i), field))
		}
	}

	return zapFields
}
