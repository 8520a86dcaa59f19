package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Level is a minimum severity name accepted in configuration.
type Level string

// Levels.
const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Encodings.
const (
	EncodingConsole = "console"
	EncodingJSON    = "json"
)

// Defaults applied by WithDefaults.
const (
	DefaultLevel    = InfoLevel
	DefaultEncoding = EncodingConsole
	DefaultOutput   = "stdout"
)

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum logging level.
	Level Level `mapstructure:"level" yaml:"level"`
	// Development enables colored, human friendly output.
	Development bool `mapstructure:"development" yaml:"development"`
	// Encoding is either "console" or "json".
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
	// OutputPaths is a list of URLs or file paths to write logging output to.
	OutputPaths []string `mapstructure:"output_paths" yaml:"output_paths"`
}

// WithDefaults returns a copy of the config with defaults for zero-value fields.
func (c Config) WithDefaults() Config {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.Encoding == "" {
		c.Encoding = DefaultEncoding
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = []string{DefaultOutput}
	}
	return c
}

// Validate checks the level and encoding names.
func (c Config) Validate() error {
	if _, err := c.Level.zapLevel(); err != nil {
		return err
	}
	switch c.Encoding {
	case EncodingConsole, EncodingJSON:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEncoding, c.Encoding)
	}
}

func (l Level) zapLevel() (zapcore.Level, error) {
	switch Level(strings.ToLower(string(l))) {
	case DebugLevel:
		return zapcore.DebugLevel, nil
	case InfoLevel:
		return zapcore.InfoLevel, nil
	case WarnLevel:
		return zapcore.WarnLevel, nil
	case ErrorLevel:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("%w: %q", ErrInvalidLevel, l)
	}
}
