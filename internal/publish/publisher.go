// Package publish uploads flushed shards to a remote store and records the
// outcome in the shard manifest.
package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/retry"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/shard"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store"
)

// DefaultPrefix is the remote directory shards are published under.
const DefaultPrefix = "shards"

// Observer receives publish outcomes, e.g. for metrics.
type Observer interface {
	ObservePublish(duration time.Duration, bytes int64, err error)
}

// Options configures a Publisher.
type Options struct {
	// Prefix is prepended to shard file names to form the remote path.
	Prefix string
	// Retry is the upload retry policy.
	Retry retry.Config
	// Observer is optional.
	Observer Observer
}

// Publisher uploads shards with retry and keeps the manifest current.
type Publisher struct {
	store    store.Store
	manifest *shard.Manifest
	prefix   string
	policy   retry.Config
	observer Observer
	logger   logger.Interface

	ensureMu sync.Mutex
	ensured  bool
}

// New creates a Publisher.
func New(st store.Store, manifest *shard.Manifest, opts Options, log logger.Interface) *Publisher {
	if log == nil {
		log = logger.NewNoOp()
	}
	prefix := strings.Trim(opts.Prefix, "/")
	if opts.Prefix == "" {
		prefix = DefaultPrefix
	}
	policy := opts.Retry
	if policy.IsRetryable == nil {
		policy.IsRetryable = IsRetryable
	}

	return &Publisher{
		store:    st,
		manifest: manifest,
		prefix:   prefix,
		policy:   policy,
		observer: opts.Observer,
		logger:   log.WithComponent("publisher"),
	}
}

// Manifest returns the manifest the publisher records into.
func (p *Publisher) Manifest() *shard.Manifest {
	return p.manifest
}

// RemotePath returns the deterministic remote path of a shard.
func (p *Publisher) RemotePath(s *shard.Shard) string {
	if p.prefix == "" {
		return s.Name
	}
	return path.Join(p.prefix, s.Name)
}

// Track records a flushed shard in the manifest without uploading it.
func (p *Publisher) Track(s *shard.Shard) (shard.Record, error) {
	rec, err := p.manifest.Track(s, p.RemotePath(s))
	if err != nil {
		return shard.Record{}, fmt.Errorf("track shard %s: %w", s.Name, err)
	}
	return rec, nil
}

// Publish uploads one shard and marks it published. Publishing the same shard
// again targets the same remote path and replaces the object.
func (p *Publisher) Publish(ctx context.Context, s *shard.Shard) (shard.Record, error) {
	rec, err := p.Track(s)
	if err != nil {
		return shard.Record{}, err
	}

	if err = p.ensureContainer(ctx); err != nil {
		return rec, err
	}

	obj := store.Object{
		LocalPath:   s.Path,
		ContentType: store.ContentTypeJSONL,
		Size:        s.Size,
		SHA256:      s.SHA256,
		Metadata: map[string]string{
			"first": strconv.Itoa(s.First),
			"end":   strconv.Itoa(s.End),
			"count": strconv.Itoa(s.Count),
		},
	}

	policy := p.policy
	policy.OnRetry = func(attempt int, delay time.Duration, retryErr error) {
		p.logger.Warn("Upload failed, retrying",
			"shard", s.Name,
			"attempt", attempt,
			"retry_in", delay,
			"error", retryErr)
	}

	started := time.Now()
	err = retry.Do(ctx, policy, func(int) error {
		return p.store.Put(ctx, rec.RemotePath, obj)
	})
	if p.observer != nil {
		p.observer.ObservePublish(time.Since(started), s.Size, err)
	}
	if err != nil {
		return rec, fmt.Errorf("publish %s to %s: %w", s.Name, p.store.Name(), err)
	}

	location := p.store.Location(rec.RemotePath)
	rec, err = p.manifest.MarkPublished(s.Name, location)
	if err != nil {
		return rec, fmt.Errorf("record publish of %s: %w", s.Name, err)
	}

	p.logger.Info("Published shard",
		"shard", s.Name,
		"documents", s.Count,
		"bytes", s.Size,
		"location", location)

	return rec, nil
}

// PublishPending publishes every manifest record not yet marked published, in
// range order. It stops at the first failure.
func (p *Publisher) PublishPending(ctx context.Context) ([]shard.Record, error) {
	pending := p.manifest.Pending()
	published := make([]shard.Record, 0, len(pending))

	for _, rec := range pending {
		s, err := shard.Describe(rec.LocalPath)
		if err != nil {
			return published, fmt.Errorf("pending shard %s: %w", rec.Name, err)
		}
		if s.SHA256 != rec.SHA256 {
			p.logger.Warn("Pending shard changed on disk since it was flushed",
				"shard", rec.Name,
				"recorded_sha256", rec.SHA256,
				"sha256", s.SHA256)
		}

		out, err := p.Publish(ctx, s)
		if err != nil {
			return published, err
		}
		published = append(published, out)
	}

	return published, nil
}

// PublishFile publishes an on-disk shard file by path.
func (p *Publisher) PublishFile(ctx context.Context, filePath string) (shard.Record, error) {
	s, err := shard.Describe(filePath)
	if err != nil {
		return shard.Record{}, err
	}
	return p.Publish(ctx, s)
}

// ensureContainer creates the remote container once per publisher. A failed
// attempt is retried on the next publish.
func (p *Publisher) ensureContainer(ctx context.Context) error {
	p.ensureMu.Lock()
	defer p.ensureMu.Unlock()

	if p.ensured {
		return nil
	}

	err := retry.Do(ctx, p.policy, func(int) error {
		return p.store.EnsureContainer(ctx)
	})
	if err != nil {
		return fmt.Errorf("ensure %s container: %w", p.store.Name(), err)
	}

	p.ensured = true
	return nil
}

// temporary is implemented by errors that know whether a retry may succeed.
type temporary interface {
	Temporary() bool
}

// IsRetryable classifies upload errors: cancellation and errors reporting
// themselves permanent stop the retry loop, everything else is retried.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}
