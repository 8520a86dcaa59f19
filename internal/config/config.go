// Package config assembles the harvester configuration from a YAML file,
// .env files and environment variables.
//
// Environment variables use the HARVESTER_ prefix with dots replaced by
// underscores, e.g. HARVESTER_SOURCE_PAGE_SIZE overrides source.page_size.
// A few conventional names are bound as well: HF_TOKEN, HF_REPO_ID, LOG_LEVEL,
// REDIS_ADDR and the MINIO_* credentials.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/config/minio"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/cursor"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/pipeline"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/publish"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/retry"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/server"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/sru"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store/huggingface"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store/local"
)

// EnvPrefix prefixes every automatically mapped environment variable.
const EnvPrefix = "HARVESTER"

// Config is the complete harvester configuration.
type Config struct {
	Logger   logger.Config   `mapstructure:"logger"   yaml:"logger"`
	Source   sru.Config      `mapstructure:"source"   yaml:"source"`
	Retry    RetryConfig     `mapstructure:"retry"    yaml:"retry"`
	Cursor   cursor.Config   `mapstructure:"cursor"   yaml:"cursor"`
	Pipeline pipeline.Config `mapstructure:"pipeline" yaml:"pipeline"`
	Publish  PublishConfig   `mapstructure:"publish"  yaml:"publish"`
	Server   server.Config   `mapstructure:"server"   yaml:"server"`
	MinIO    *minio.Config   `mapstructure:"-"        yaml:"minio"`
}

// RetryConfig holds the retry policies for fetches and uploads.
type RetryConfig struct {
	Fetch   retry.Settings `mapstructure:"fetch"   yaml:"fetch"`
	Publish retry.Settings `mapstructure:"publish" yaml:"publish"`
}

// PublishConfig selects the remote store.
type PublishConfig struct {
	// Store is minio, huggingface or local.
	Store string `mapstructure:"store" yaml:"store"`
	// Prefix is the remote directory shards are uploaded under.
	Prefix      string             `mapstructure:"prefix"      yaml:"prefix"`
	Local       local.Config       `mapstructure:"local"       yaml:"local"`
	HuggingFace huggingface.Config `mapstructure:"huggingface" yaml:"huggingface"`
}

// Load reads configuration into v and decodes it. cfgFile may be empty, in
// which case config.yaml is searched in "." and "./config"; a missing file is
// not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	return Decode(v)
}

// Decode builds a validated Config from the values already held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.MinIO = minio.LoadFromViper(v)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Source = c.Source.WithDefaults()
	c.Pipeline = c.Pipeline.WithDefaults()
	c.Pipeline.PageSize = c.Source.PageSize
	c.Publish.HuggingFace = c.Publish.HuggingFace.WithDefaults()
	if c.Publish.Prefix == "" {
		c.Publish.Prefix = publish.DefaultPrefix
	}
	if c.Publish.Local.Dir == "" {
		c.Publish.Local.Dir = "published"
	}
	c.Server.SetDefaults()
}

// Validate checks every section. Store credentials are only required for
// the selected backend.
func (c *Config) Validate() error {
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Fetch.Validate(); err != nil {
		return fmt.Errorf("retry.fetch: %w", err)
	}
	if err := c.Retry.Publish.Validate(); err != nil {
		return fmt.Errorf("retry.publish: %w", err)
	}
	if err := c.Cursor.Validate(); err != nil {
		return err
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	return c.Publish.validate(c.MinIO)
}

func (p *PublishConfig) validate(minioCfg *minio.Config) error {
	switch p.Store {
	case store.BackendLocal:
		if p.Local.Dir == "" {
			return errors.New("publish.local.dir is required for the local store")
		}
		return nil
	case store.BackendHuggingFace:
		return p.HuggingFace.Validate()
	case store.BackendMinIO:
		if minioCfg == nil {
			return errors.New("minio configuration missing")
		}
		return minioCfg.Validate()
	default:
		return fmt.Errorf("%w: %q", store.ErrUnknownBackend, p.Store)
	}
}

// loadEnvFiles loads .env files in priority order: ENV_FILE alone when set,
// otherwise .env.local then .env. Missing files are ignored and variables
// already in the environment are never overwritten.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	if err := godotenv.Load(".env.local"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env.local: %w", err)
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger", map[string]any{
		"level":        "info",
		"development":  false,
		"encoding":     "console",
		"output_paths": []string{"stdout"},
	})

	v.SetDefault("source", map[string]any{
		"endpoint":           sru.DefaultEndpoint,
		"query":              sru.DefaultQuery,
		"record_schema":      sru.DefaultRecordSchema,
		"version":            sru.DefaultVersion,
		"page_size":          sru.DefaultPageSize,
		"request_timeout":    sru.DefaultRequestTimeout,
		"user_agent":         sru.DefaultUserAgent,
		"max_response_bytes": sru.DefaultMaxResponseBytes,
		"source_name":        sru.DefaultSourceName,
	})

	v.SetDefault("retry", map[string]any{
		"fetch": map[string]any{
			"max_attempts":  retry.DefaultMaxAttempts,
			"initial_delay": retry.DefaultInitialDelay,
			"max_delay":     30 * time.Second,
			"multiplier":    retry.DefaultMultiplier,
			"max_jitter":    retry.DefaultMaxJitter,
		},
		"publish": map[string]any{
			"max_attempts":  3,
			"initial_delay": 2 * time.Second,
			"max_delay":     time.Minute,
			"multiplier":    2.0,
			"max_jitter":    time.Second,
		},
	})

	v.SetDefault("cursor", map[string]any{
		"backend": cursor.BackendFile,
		"file":    "sru_state.json",
		"redis": map[string]any{
			"address":  "localhost:6379",
			"password": "",
			"db":       0,
			"key":      cursor.DefaultRedisKey,
			"timeout":  5 * time.Second,
		},
	})

	v.SetDefault("pipeline", map[string]any{
		"shard_size":   300,
		"shard_dir":    "shards",
		"page_delay":   pipeline.DefaultPageDelay,
		"publish_mode": string(pipeline.DefaultPublishMode),
		"max_pages":    0,
	})

	v.SetDefault("publish", map[string]any{
		"store":  store.BackendLocal,
		"prefix": publish.DefaultPrefix,
		"local": map[string]any{
			"dir": "published",
		},
		"huggingface": map[string]any{
			"endpoint":       huggingface.DefaultEndpoint,
			"repo_id":        "",
			"repo_type":      huggingface.DefaultRepoType,
			"revision":       huggingface.DefaultRevision,
			"private":        false,
			"token":          "",
			"timeout":        huggingface.DefaultTimeout,
			"commit_message": huggingface.DefaultCommitMessage,
		},
	})

	v.SetDefault("server", map[string]any{
		"enabled":          false,
		"address":          server.DefaultAddress,
		"debug":            false,
		"read_timeout":     server.DefaultReadTimeout,
		"write_timeout":    server.DefaultWriteTimeout,
		"idle_timeout":     server.DefaultIdleTimeout,
		"shutdown_timeout": server.DefaultShutdownTimeout,
	})
}

// bindEnvVars maps conventional environment variable names to config keys.
// Explicitly bound names are not prefixed.
func bindEnvVars(v *viper.Viper) error {
	bindings := []struct {
		key  string
		envs []string
	}{
		{"logger.level", []string{"HARVESTER_LOGGER_LEVEL", "LOG_LEVEL"}},
		{"logger.encoding", []string{"HARVESTER_LOGGER_ENCODING", "LOG_FORMAT"}},
		{"publish.huggingface.token", []string{"HARVESTER_PUBLISH_HUGGINGFACE_TOKEN", "HF_TOKEN"}},
		{"publish.huggingface.repo_id", []string{"HARVESTER_PUBLISH_HUGGINGFACE_REPO_ID", "HF_REPO_ID"}},
		{"cursor.redis.address", []string{"HARVESTER_CURSOR_REDIS_ADDRESS", "REDIS_ADDR"}},
		{"cursor.redis.password", []string{"HARVESTER_CURSOR_REDIS_PASSWORD", "REDIS_PASSWORD"}},
		{"minio.endpoint", []string{"HARVESTER_MINIO_ENDPOINT", "MINIO_ENDPOINT"}},
		{"minio.access_key", []string{"HARVESTER_MINIO_ACCESS_KEY", "MINIO_ACCESS_KEY"}},
		{"minio.secret_key", []string{"HARVESTER_MINIO_SECRET_KEY", "MINIO_SECRET_KEY"}},
		{"minio.bucket", []string{"HARVESTER_MINIO_BUCKET", "MINIO_BUCKET"}},
	}

	for _, b := range bindings {
		args := append([]string{b.key}, b.envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b.envs[len(b.envs)-1], err)
		}
	}
	return nil
}
