// Package cursor persists the harvest resume offset: the SRU position of the
// next record that is not yet durably stored in a shard file.
package cursor

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
)

// Start is the offset used when no usable state exists. SRU positions are 1-based.
const Start = 1

// ErrInvalidOffset is returned when saving an offset below Start.
var ErrInvalidOffset = errors.New("cursor offset must be at least 1")

// Store loads and saves the resume offset.
type Store interface {
	// Load returns the persisted offset, or Start when nothing usable is persisted.
	Load(ctx context.Context) (int, error)
	// Save durably replaces the persisted offset.
	Save(ctx context.Context, offset int) error
}

// Backend names.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config selects and configures the cursor backend.
type Config struct {
	Backend string      `mapstructure:"backend" yaml:"backend"`
	File    string      `mapstructure:"file"    yaml:"file"`
	Redis   RedisConfig `mapstructure:"redis"   yaml:"redis"`
}

// Validate validates the cursor configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile:
		if c.File == "" {
			return errors.New("cursor file is required for the file backend")
		}
	case BackendRedis:
		if c.Redis.Address == "" {
			return errors.New("cursor redis address is required for the redis backend")
		}
		if c.Redis.Key == "" {
			return errors.New("cursor redis key is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cursor backend %q", c.Backend)
	}
	return nil
}

// New builds the configured Store.
func New(cfg *Config, log logger.Interface) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend == BackendRedis {
		return NewRedisStore(NewRedisClient(&cfg.Redis), cfg.Redis.Key, log), nil
	}
	return NewFileStore(cfg.File, log), nil
}

func validOffset(offset int) error {
	if offset < Start {
		return fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
	}
	return nil
}
