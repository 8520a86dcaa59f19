package cursor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/cursor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_LoadMissingStartsFresh(t *testing.T) {
	t.Parallel()

	store := cursor.NewFileStore(filepath.Join(t.TempDir(), cursor.DefaultFile), nil)

	offset, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cursor.Start, offset)
}

func TestFileStore_SaveThenLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := cursor.NewFileStore(filepath.Join(t.TempDir(), "state", cursor.DefaultFile), nil)

	for _, offset := range []int{1, 2, 101, 651, 1_000_001} {
		require.NoError(t, store.Save(ctx, offset))

		got, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, offset, got)
	}
}

func TestFileStore_WritesLegacyFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), cursor.DefaultFile)
	store := cursor.NewFileStore(path, nil)
	require.NoError(t, store.Save(context.Background(), 301))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start": 301}`, string(data))
}

func TestFileStore_CorruptStateStartsFresh(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "torn write", content: `{"sta`},
		{name: "not json", content: "garbage"},
		{name: "missing field", content: `{"offset": 10}`},
		{name: "negative", content: `{"start": -5}`},
		{name: "zero", content: `{"start": 0}`},
		{name: "wrong type", content: `{"start": "ten"}`},
		{name: "empty", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), cursor.DefaultFile)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			offset, err := cursor.NewFileStore(path, nil).Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, cursor.Start, offset)
		})
	}
}

func TestFileStore_SaveRejectsInvalidOffset(t *testing.T) {
	t.Parallel()

	store := cursor.NewFileStore(filepath.Join(t.TempDir(), cursor.DefaultFile), nil)
	require.ErrorIs(t, store.Save(context.Background(), 0), cursor.ErrInvalidOffset)
}

func TestFileStore_SaveFailsWhenDirectoryIsAFile(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	store := cursor.NewFileStore(filepath.Join(blocker, cursor.DefaultFile), nil)
	require.Error(t, store.Save(context.Background(), 10))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  cursor.Config
		wantErr bool
	}{
		{name: "file", config: cursor.Config{Backend: cursor.BackendFile, File: "state.json"}},
		{name: "file without path", config: cursor.Config{Backend: cursor.BackendFile}, wantErr: true},
		{
			name: "redis",
			config: cursor.Config{
				Backend: cursor.BackendRedis,
				Redis:   cursor.RedisConfig{Address: "localhost:6379", Key: "k"},
			},
		},
		{name: "redis without address", config: cursor.Config{Backend: cursor.BackendRedis}, wantErr: true},
		{name: "unknown", config: cursor.Config{Backend: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	t.Parallel()

	store, err := cursor.New(&cursor.Config{Backend: cursor.BackendFile, File: "state.json"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &cursor.FileStore{}, store)

	store, err = cursor.New(&cursor.Config{
		Backend: cursor.BackendRedis,
		Redis:   cursor.RedisConfig{Address: "localhost:6379", Key: "k"},
	}, nil)
	require.NoError(t, err)
	assert.IsType(t, &cursor.RedisStore{}, store)
}
