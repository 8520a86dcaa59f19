// Package pipeline drives a resumable harvest: fetch a page, extract its
// records, accumulate documents into shards, publish them and persist the
// cursor, until the source is exhausted or the run is stopped.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/shard"
)

// State is a step of the harvest state machine.
type State string

// Pipeline states.
const (
	StateIdle         State = "IDLE"
	StateResume       State = "RESUME"
	StateFetching     State = "FETCHING"
	StateExtracting   State = "EXTRACTING"
	StateAccumulating State = "ACCUMULATING"
	StateFlushing     State = "FLUSHING"
	StatePublishing   State = "PUBLISHING"
	StateAdvancing    State = "ADVANCING"
	StateDraining     State = "DRAINING"
	StateDone         State = "DONE"
	StateStopped      State = "STOPPED"
	StateFailed       State = "FAILED"
)

// Terminal reports whether the run has ended.
func (s State) Terminal() bool {
	return s == StateDone || s == StateStopped || s == StateFailed
}

// PublishMode selects when flushed shards are uploaded.
type PublishMode string

// Publish modes.
const (
	// PublishPerShard uploads every shard as soon as it is flushed.
	PublishPerShard PublishMode = "perShard"
	// PublishAtEnd records shards in the manifest and uploads them at drain.
	PublishAtEnd PublishMode = "atEnd"
)

// Default configuration values.
const (
	DefaultPageDelay   = 2 * time.Second
	DefaultPublishMode = PublishPerShard
)

// Config configures the Driver.
type Config struct {
	// PageSize is the number of records requested per fetch.
	PageSize int `mapstructure:"-" yaml:"-"`
	// ShardSize is the number of documents per shard.
	ShardSize int `mapstructure:"shard_size" yaml:"shard_size"`
	// ShardDir is where shard files and the manifest are written.
	ShardDir string `mapstructure:"shard_dir" yaml:"shard_dir"`
	// PageDelay is the pause between pages.
	PageDelay time.Duration `mapstructure:"page_delay" yaml:"page_delay"`
	// PublishMode is perShard or atEnd.
	PublishMode PublishMode `mapstructure:"publish_mode" yaml:"publish_mode"`
	// MaxPages bounds the number of fetches in one run; 0 means unbounded.
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages"`
}

// WithDefaults returns a copy of the config with defaults for zero-value fields.
func (c Config) WithDefaults() Config {
	if c.ShardSize <= 0 {
		c.ShardSize = shard.DefaultSize
	}
	if c.ShardDir == "" {
		c.ShardDir = "shards"
	}
	if c.PublishMode == "" {
		c.PublishMode = DefaultPublishMode
	}
	return c
}

// Validate validates the pipeline configuration.
func (c *Config) Validate() error {
	if c.PageSize <= 0 {
		return errors.New("page size must be greater than 0")
	}
	if c.ShardSize <= 0 {
		return errors.New("pipeline shard_size must be greater than 0")
	}
	if c.PageDelay < 0 {
		return errors.New("pipeline page_delay must not be negative")
	}
	if c.MaxPages < 0 {
		return errors.New("pipeline max_pages must not be negative")
	}
	switch c.PublishMode {
	case PublishPerShard, PublishAtEnd:
	default:
		return fmt.Errorf("pipeline publish_mode must be %q or %q, got %q", PublishPerShard, PublishAtEnd, c.PublishMode)
	}
	return nil
}
