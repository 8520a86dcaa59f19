// Package huggingface publishes shards to a Hugging Face Hub dataset repository
// through the Hub HTTP API.
package huggingface

import (
	"errors"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultEndpoint      = "https://huggingface.co"
	DefaultRepoType      = "dataset"
	DefaultRevision      = "main"
	DefaultTimeout       = 10 * time.Minute
	DefaultCommitMessage = "Upload {path}"
)

// Config configures the Hugging Face store.
type Config struct {
	// Endpoint is the Hub base URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// RepoID is "<namespace>/<name>".
	RepoID string `mapstructure:"repo_id" yaml:"repo_id"`
	// RepoType is dataset, model or space.
	RepoType string `mapstructure:"repo_type" yaml:"repo_type"`
	// Revision is the branch commits are made to.
	Revision string `mapstructure:"revision" yaml:"revision"`
	// Private creates the repository as private.
	Private bool `mapstructure:"private" yaml:"private"`
	// Token is the access token, usually from HF_TOKEN.
	Token string `mapstructure:"token" yaml:"-"`
	// Timeout bounds one API call, including file transfer.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// CommitMessage is the commit summary; {path} is replaced by the file path.
	CommitMessage string `mapstructure:"commit_message" yaml:"commit_message"`
}

// WithDefaults returns a copy of the config with defaults for zero-value fields.
func (c Config) WithDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.RepoType == "" {
		c.RepoType = DefaultRepoType
	}
	if c.Revision == "" {
		c.Revision = DefaultRevision
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CommitMessage == "" {
		c.CommitMessage = DefaultCommitMessage
	}
	return c
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("huggingface token required (set HF_TOKEN)")
	}
	namespace, name, ok := strings.Cut(c.RepoID, "/")
	if !ok || namespace == "" || name == "" || strings.Contains(name, "/") {
		return errors.New("huggingface repo_id must be <namespace>/<name>")
	}
	switch c.RepoType {
	case "", "dataset", "model", "space":
	default:
		return errors.New("huggingface repo_type must be dataset, model or space")
	}
	return nil
}
