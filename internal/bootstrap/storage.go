package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/config"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/cursor"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/metrics"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/publish"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/shard"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store/huggingface"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store/local"
	storeminio "github.com/jonesrussell/north-cloud/sru-harvester/internal/store/minio"
)

const shardDirPerm = 0o755

// CursorComponents holds the cursor store and the function releasing it.
type CursorComponents struct {
	Store cursor.Store
	Close func() error
}

// SetupCursor opens the configured cursor backend. The redis backend is
// pinged so a bad address fails before any page is fetched.
func SetupCursor(ctx context.Context, cfg *cursor.Config, log logger.Interface) (*CursorComponents, error) {
	if cfg.Backend != cursor.BackendRedis {
		st, err := cursor.New(cfg, log)
		if err != nil {
			return nil, fmt.Errorf("create cursor store: %w", err)
		}
		return &CursorComponents{Store: st, Close: func() error { return nil }}, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("create cursor store: %w", err)
	}
	client := cursor.NewRedisClient(&cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Address, err)
	}

	log.Info("Using redis cursor", "address", cfg.Redis.Address, "key", cfg.Redis.Key)
	return &CursorComponents{
		Store: cursor.NewRedisStore(client, cfg.Redis.Key, log),
		Close: client.Close,
	}, nil
}

// SetupStore creates the remote store selected by publish.store.
func SetupStore(cfg *config.Config, log logger.Interface) (store.Store, error) {
	switch cfg.Publish.Store {
	case store.BackendLocal:
		st, err := local.New(cfg.Publish.Local)
		if err != nil {
			return nil, fmt.Errorf("create local store: %w", err)
		}
		return st, nil
	case store.BackendMinIO:
		st, err := storeminio.New(cfg.MinIO, log)
		if err != nil {
			return nil, fmt.Errorf("create minio store: %w", err)
		}
		return st, nil
	case store.BackendHuggingFace:
		st, err := huggingface.New(cfg.Publish.HuggingFace, log)
		if err != nil {
			return nil, fmt.Errorf("create huggingface store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownBackend, cfg.Publish.Store)
	}
}

// SetupPublisher creates the shard directory, loads its manifest and builds
// a publisher on the configured store. m may be nil.
func SetupPublisher(cfg *config.Config, log logger.Interface, m *metrics.Metrics) (*publish.Publisher, error) {
	st, err := SetupStore(cfg, log)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(cfg.Pipeline.ShardDir, shardDirPerm); err != nil {
		return nil, fmt.Errorf("create shard directory: %w", err)
	}
	manifest, err := shard.LoadManifest(filepath.Join(cfg.Pipeline.ShardDir, shard.ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	opts := publish.Options{
		Prefix: cfg.Publish.Prefix,
		Retry:  cfg.Retry.Publish.Policy(),
	}
	if m != nil {
		opts.Observer = m
	}

	log.Info("Publishing to store",
		"store", st.Name(),
		"prefix", cfg.Publish.Prefix,
		"manifest", manifest.Path(),
	)
	return publish.New(st, manifest, opts, log), nil
}
