// Package bootstrap wires configuration, logging, stores and the harvest
// pipeline together for the command-line entry points.
//
// The harvest bootstrap follows these phases:
//   - Phase 1: Config & Logger - Load configuration and create logger
//   - Phase 2: Cursor - Open the file or redis cursor store
//   - Phase 3: Publisher - Create the remote store, load the manifest
//   - Phase 4: Pipeline - Create the SRU client and the driver
//   - Phase 5: Server - Start the status server (if enabled)
//   - Phase 6: Run - Harvest until done, failed or interrupted
package bootstrap

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/config"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
)

// === Errors ===

var (
	// errLoggerRequired is returned when CommandDeps.Logger is nil.
	errLoggerRequired = errors.New("logger is required")
	// errConfigRequired is returned when CommandDeps.Config is nil.
	errConfigRequired = errors.New("config is required")
)

// === Types ===

// CommandDeps holds the dependencies every command needs.
type CommandDeps struct {
	Logger logger.Interface
	Config *config.Config
}

// Options controls config loading for a command.
type Options struct {
	// ConfigFile is an explicit config path; empty searches the defaults.
	ConfigFile string
	// Debug forces debug logging with development output.
	Debug bool
}

// === Config Loading ===

// NewCommandDeps creates CommandDeps by loading config and creating logger.
func NewCommandDeps(v *viper.Viper, opts Options) (*CommandDeps, error) {
	cfg, err := config.Load(v, opts.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := CreateLogger(cfg, opts.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	deps := &CommandDeps{
		Logger: log.With("service", "sru-harvester"),
		Config: cfg,
	}

	if validateErr := deps.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate deps: %w", validateErr)
	}

	return deps, nil
}

// CreateLogger creates a logger from configuration. Debug overrides the
// configured level.
func CreateLogger(cfg *config.Config, debug bool) (logger.Interface, error) {
	logCfg := cfg.Logger
	if debug {
		logCfg.Level = logger.DebugLevel
		logCfg.Development = true
		logCfg.Encoding = "console"
	}
	return logger.New(&logCfg)
}

// Validate ensures all required dependencies are present.
func (d *CommandDeps) Validate() error {
	if d.Logger == nil {
		return errLoggerRequired
	}
	if d.Config == nil {
		return errConfigRequired
	}
	return nil
}
