package retry

import (
	"errors"
	"time"
)

// Settings is the user-facing part of a retry policy, loaded from configuration.
type Settings struct {
	MaxAttempts  int           `mapstructure:"max_attempts"  yaml:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"     yaml:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"    yaml:"multiplier"`
	MaxJitter    time.Duration `mapstructure:"max_jitter"    yaml:"max_jitter"`
}

// Policy converts the settings into a retry Config.
func (s Settings) Policy() Config {
	return Config{
		MaxAttempts:  s.MaxAttempts,
		InitialDelay: s.InitialDelay,
		MaxDelay:     s.MaxDelay,
		Multiplier:   s.Multiplier,
		Jitter:       UniformJitter(s.MaxJitter),
	}
}

// Validate validates the retry settings.
func (s Settings) Validate() error {
	if s.MaxAttempts <= 0 {
		return errors.New("max_attempts must be greater than 0")
	}
	if s.InitialDelay < 0 || s.MaxDelay < 0 || s.MaxJitter < 0 {
		return errors.New("retry delays must not be negative")
	}
	return nil
}
