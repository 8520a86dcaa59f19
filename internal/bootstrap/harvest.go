package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/metrics"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/pipeline"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/server"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/shard"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/sru"
)

// Harvest holds everything one harvest run needs.
type Harvest struct {
	Driver   *pipeline.Driver
	Server   *server.Server
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Cursor   *CursorComponents
}

// Close releases the cursor backend.
func (h *Harvest) Close() error {
	if h.Cursor == nil || h.Cursor.Close == nil {
		return nil
	}
	return h.Cursor.Close()
}

// NewRegistry creates a registry with the harvester, Go runtime and process
// collectors.
func NewRegistry() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewMetrics(reg)
}

// SetupSource creates the SRU client with the fetch retry policy. m may be nil.
func SetupSource(deps *CommandDeps, m *metrics.Metrics) *sru.Client {
	var opts []sru.Option
	if m != nil {
		opts = append(opts, sru.WithObserver(m))
	}
	return sru.NewClient(deps.Config.Source, deps.Config.Retry.Fetch.Policy(), deps.Logger, opts...)
}

// SetupHarvest runs phases 2 to 5: cursor, publisher, pipeline and server.
// The caller must Close the returned Harvest.
func SetupHarvest(ctx context.Context, deps *CommandDeps, version string) (*Harvest, error) {
	cfg := deps.Config
	log := deps.Logger
	reg, m := NewRegistry()

	// Phase 2: cursor
	cur, err := SetupCursor(ctx, &cfg.Cursor, log)
	if err != nil {
		return nil, err
	}
	h := &Harvest{Registry: reg, Metrics: m, Cursor: cur}

	// Phase 3: publisher
	pub, err := SetupPublisher(cfg, log, m)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	// Phase 4: pipeline
	writer, err := shard.NewWriter(cfg.Pipeline.ShardDir, cfg.Pipeline.ShardSize)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("create shard writer: %w", err)
	}
	driver, err := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Source:    SetupSource(deps, m),
		Extractor: sru.NewExtractor(cfg.Source.SourceName),
		Cursor:    cur.Store,
		Writer:    writer,
		Publisher: pub,
		Observer:  m,
		Logger:    log,
	})
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	h.Driver = driver

	// Phase 5: status server
	if cfg.Server.Enabled {
		h.Server = server.NewServer(&cfg.Server, log, driver, reg, version)
	}

	return h, nil
}
