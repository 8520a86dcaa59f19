// Package retry provides retry utilities with exponential backoff and jitter for transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

var (
	// ErrMaxAttemptsExceeded is returned when max retry attempts are exceeded
	ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")
	// ErrContextCancelled is returned when the context is cancelled during retry
	ErrContextCancelled = errors.New("context cancelled during retry")
)

// Default policy values.
const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = 2 * time.Second
	DefaultMaxDelay     = 2 * time.Minute
	DefaultMultiplier   = 2.0
	DefaultMaxJitter    = time.Second
)

// Config configures retry behavior.
//
// Unlike DefaultConfig, a zero Config does not wait between attempts: a zero
// InitialDelay and nil Jitter produce back-to-back retries, which is what
// tests want.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt)
	MaxAttempts int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay caps the exponential part of the delay (0 = uncapped)
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier (<= 0 means 2.0)
	Multiplier float64
	// Jitter returns the random amount added to a computed backoff delay
	Jitter func(backoff time.Duration) time.Duration
	// IsRetryable determines if an error should be retried (nil retries everything)
	IsRetryable func(error) bool
	// OnRetry is called before sleeping for the given attempt
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the production retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Multiplier:   DefaultMultiplier,
		Jitter:       UniformJitter(DefaultMaxJitter),
	}
}

// NoDelay returns a policy that retries immediately up to maxAttempts times.
func NoDelay(maxAttempts int) Config {
	return Config{MaxAttempts: maxAttempts}
}

// UniformJitter returns a jitter function adding a random fraction of max.
func UniformJitter(maxJitter time.Duration) func(time.Duration) time.Duration {
	return func(time.Duration) time.Duration {
		if maxJitter <= 0 {
			return 0
		}
		return time.Duration(rand.Float64() * float64(maxJitter))
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (c Config) Backoff(attempt int) time.Duration {
	multiplier := c.Multiplier
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}

	delay := time.Duration(float64(c.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.Jitter != nil {
		delay += c.Jitter(delay)
	}
	return delay
}

// Do executes fn with retry logic and exponential backoff. The attempt number
// (1-based) is passed to fn.
func Do(ctx context.Context, config Config, fn func(attempt int) error) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}

		lastErr = err

		if config.IsRetryable != nil && !config.IsRetryable(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxAttempts {
			break
		}

		delay := config.Backoff(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, delay, err)
		}

		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, config.MaxAttempts, lastErr)
}
