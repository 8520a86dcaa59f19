// Package minio provides MinIO configuration for shard publishing.
package minio

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config represents MinIO configuration for shard publishing.
type Config struct {
	// Endpoint is the MinIO server address (e.g., "minio:9000")
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// AccessKey for MinIO authentication
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	// SecretKey for MinIO authentication
	SecretKey string `mapstructure:"secret_key" yaml:"-"`
	// UseSSL enables HTTPS for MinIO connections
	UseSSL bool `mapstructure:"use_ssl" yaml:"use_ssl"`
	// Bucket receives the shard objects
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	// Region is used when the bucket has to be created
	Region string `mapstructure:"region" yaml:"region"`
	// UploadTimeout is the timeout for a single upload
	UploadTimeout time.Duration `mapstructure:"upload_timeout" yaml:"upload_timeout"`
}

const (
	// defaultUploadTimeout is the default timeout for upload operations.
	defaultUploadTimeout = 5 * time.Minute
	// defaultBucket is the default shard bucket.
	defaultBucket = "sru-shards"
)

// NewConfig returns a new MinIO configuration with default values.
func NewConfig() *Config {
	return &Config{
		Endpoint:      "localhost:9000",
		UseSSL:        false,
		Bucket:        defaultBucket,
		UploadTimeout: defaultUploadTimeout,
	}
}

// LoadFromViper loads MinIO configuration from Viper. Environment variables
// reach it through the keys bound by the caller.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := NewConfig()

	if v.IsSet("minio.endpoint") {
		cfg.Endpoint = v.GetString("minio.endpoint")
	}
	if v.IsSet("minio.access_key") {
		cfg.AccessKey = v.GetString("minio.access_key")
	}
	if v.IsSet("minio.secret_key") {
		cfg.SecretKey = v.GetString("minio.secret_key")
	}
	if v.IsSet("minio.use_ssl") {
		cfg.UseSSL = v.GetBool("minio.use_ssl")
	}
	if v.IsSet("minio.bucket") {
		cfg.Bucket = v.GetString("minio.bucket")
	}
	if v.IsSet("minio.region") {
		cfg.Region = v.GetString("minio.region")
	}
	if v.IsSet("minio.upload_timeout") {
		cfg.UploadTimeout = v.GetDuration("minio.upload_timeout")
	}

	return cfg
}

// Validate validates the MinIO configuration.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("minio endpoint required")
	}
	if c.AccessKey == "" {
		return errors.New("minio access_key required")
	}
	if c.SecretKey == "" {
		return errors.New("minio secret_key required")
	}
	if c.Bucket == "" {
		return errors.New("minio bucket required")
	}
	if c.UploadTimeout <= 0 {
		return errors.New("minio upload_timeout must be greater than 0")
	}

	return nil
}
