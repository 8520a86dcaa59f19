package logger_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "harvester.log")

	log, err := logger.New(&logger.Config{
		Level:       logger.InfoLevel,
		Encoding:    "json",
		OutputPaths: []string{path},
	})
	require.NoError(t, err)

	log.WithComponent("cursor").Info("cursor saved", "offset", 301, "error", errors.New("boom"))
	log.Debug("hidden below info")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `"msg":"cursor saved"`)
	assert.Contains(t, out, `"component":"cursor"`)
	assert.Contains(t, out, `"offset":301`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.NotContains(t, out, "hidden below info")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := logger.New(&logger.Config{Level: "loud"})
	require.ErrorIs(t, err, logger.ErrInvalidLevel)

	_, err = logger.New(&logger.Config{Encoding: "xml"})
	require.ErrorIs(t, err, logger.ErrInvalidEncoding)
}

func TestNoOp(t *testing.T) {
	t.Parallel()

	log := logger.NewNoOp()
	log.With("key", "value").WithError(errors.New("x")).Info("nothing")
	assert.NoError(t, log.Sync())
}

func TestNewObserved_RecordsContext(t *testing.T) {
	t.Parallel()

	log, logs := logger.NewObserved(logger.InfoLevel)
	log.WithComponent("pipeline").WithRun("run-1").Warn("Dropping record", "position", 5, "dangling")
	log.Debug("below level")

	entries := logs.All()
	require.Len(t, entries, 1)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "pipeline", ctx[logger.FieldComponent])
	assert.Equal(t, "run-1", ctx[logger.FieldRunID])
	assert.Equal(t, int64(5), ctx["position"])
	assert.Contains(t, ctx, "dangling")
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	cfg := logger.Config{}.WithDefaults()
	assert.Equal(t, logger.InfoLevel, cfg.Level)
	assert.Equal(t, logger.EncodingConsole, cfg.Encoding)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	require.NoError(t, cfg.Validate())

	cfg.Level = "WARN"
	require.NoError(t, cfg.Validate())
}
