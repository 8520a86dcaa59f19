package sru

import (
	"errors"
	"net/url"
	"time"
)

// Default configuration values.
const (
	DefaultEndpoint         = "https://zoek.officielebekendmakingen.nl/sru/Search"
	DefaultQuery            = `c.product-area=="officielepublicaties"`
	DefaultRecordSchema     = "gzd"
	DefaultVersion          = "2.0"
	DefaultPageSize         = 1000
	DefaultRequestTimeout   = 60 * time.Second
	DefaultUserAgent        = "NorthCloud-SRUHarvester/1.0"
	DefaultMaxResponseBytes = 256 * 1024 * 1024
	DefaultSourceName       = "Officiële Publicaties"
)

// Config holds SRU source configuration.
type Config struct {
	Endpoint         string        `mapstructure:"endpoint"           yaml:"endpoint"`
	Query            string        `mapstructure:"query"              yaml:"query"`
	RecordSchema     string        `mapstructure:"record_schema"      yaml:"record_schema"`
	Version          string        `mapstructure:"version"            yaml:"version"`
	PageSize         int           `mapstructure:"page_size"          yaml:"page_size"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"    yaml:"request_timeout"`
	UserAgent        string        `mapstructure:"user_agent"         yaml:"user_agent"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes" yaml:"max_response_bytes"`
	SourceName       string        `mapstructure:"source_name"        yaml:"source_name"`
}

// WithDefaults returns a copy of the config with default values applied for zero-value fields.
func (c Config) WithDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Query == "" {
		c.Query = DefaultQuery
	}
	if c.RecordSchema == "" {
		c.RecordSchema = DefaultRecordSchema
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if c.SourceName == "" {
		c.SourceName = DefaultSourceName
	}
	return c
}

// Validate validates the source configuration.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("source endpoint is required")
	}
	if u, err := url.Parse(c.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("source endpoint must be an absolute URL")
	}
	if c.Query == "" {
		return errors.New("source query is required")
	}
	if c.PageSize <= 0 {
		return errors.New("source page_size must be greater than 0")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("source request_timeout must be greater than 0")
	}
	return nil
}
