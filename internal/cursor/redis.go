package cursor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
)

// RedisConfig configures the redis cursor backend.
type RedisConfig struct {
	Address  string        `mapstructure:"address"  yaml:"address"`
	Password string        `mapstructure:"password" yaml:"-"`
	DB       int           `mapstructure:"db"       yaml:"db"`
	Key      string        `mapstructure:"key"      yaml:"key"`
	Timeout  time.Duration `mapstructure:"timeout"  yaml:"timeout"`
}

// DefaultRedisKey is the key holding the offset.
const DefaultRedisKey = "sru-harvester:cursor"

// RedisClient is the subset of redis.Cmdable used by RedisStore.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// NewRedisClient creates a go-redis client from the configuration.
func NewRedisClient(cfg *RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
}

// RedisStore keeps the offset as an integer string under one key.
type RedisStore struct {
	client RedisClient
	key    string
	log    logger.Interface
}

// NewRedisStore creates a redis-backed cursor store.
func NewRedisStore(client RedisClient, key string, log logger.Interface) *RedisStore {
	if log == nil {
		log = logger.NewNoOp()
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, log: log}
}

// Load returns the persisted offset. A missing or unparsable value starts
// fresh; a connection failure is returned.
func (s *RedisStore) Load(ctx context.Context) (int, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return Start, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load cursor from redis: %w", err)
	}

	offset, convErr := strconv.Atoi(val)
	if convErr != nil || offset < Start {
		s.log.Warn("Cursor value corrupt, starting fresh", "key", s.key, "value", val)
		return Start, nil
	}
	return offset, nil
}

// Save replaces the persisted offset without expiry.
func (s *RedisStore) Save(ctx context.Context, offset int) error {
	if err := validOffset(offset); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, strconv.Itoa(offset), 0).Err(); err != nil {
		return fmt.Errorf("save cursor to redis: %w", err)
	}
	return nil
}
