package shard_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleShard(first, end int, sum string) *shard.Shard {
	name := shard.FileName(first, end)
	return &shard.Shard{
		Name:   name,
		Path:   filepath.Join("shards", name),
		First:  first,
		End:    end,
		Count:  end - first,
		SHA256: sum,
		Size:   42,
	}
}

func TestLoadManifest_MissingIsEmpty(t *testing.T) {
	t.Parallel()

	m, err := shard.LoadManifest(filepath.Join(t.TempDir(), shard.ManifestFile))
	require.NoError(t, err)
	assert.Empty(t, m.Records())
	assert.Empty(t, m.Pending())
}

func TestLoadManifest_CorruptIsError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), shard.ManifestFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := shard.LoadManifest(path)
	require.Error(t, err)
}

func TestManifest_TrackPublishReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), shard.ManifestFile)
	m, err := shard.LoadManifest(path)
	require.NoError(t, err)

	_, err = m.Track(sampleShard(301, 601, "bbb"), "shards/shard_000301_000601.jsonl")
	require.NoError(t, err)
	_, err = m.Track(sampleShard(1, 301, "aaa"), "shards/shard_000001_000301.jsonl")
	require.NoError(t, err)

	pending := m.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].First)

	rec, err := m.MarkPublished("shard_000001_000301.jsonl", "s3://bucket/shards/shard_000001_000301.jsonl")
	require.NoError(t, err)
	assert.True(t, rec.Published())

	reloaded, err := shard.LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Records(), 2)

	pending = reloaded.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "shard_000301_000601.jsonl", pending[0].Name)

	got, ok := reloaded.Get("shard_000001_000301.jsonl")
	require.True(t, ok)
	assert.Equal(t, "s3://bucket/shards/shard_000001_000301.jsonl", got.Location)
	assert.Equal(t, 301, got.ToShard().End)
}

func TestManifest_RetrackKeepsPublishedOnlyForSameContent(t *testing.T) {
	t.Parallel()

	m, err := shard.LoadManifest(filepath.Join(t.TempDir(), shard.ManifestFile))
	require.NoError(t, err)

	s := sampleShard(1, 301, "aaa")
	_, err = m.Track(s, "shards/x.jsonl")
	require.NoError(t, err)
	_, err = m.MarkPublished(s.Name, "loc")
	require.NoError(t, err)

	rec, err := m.Track(s, "shards/x.jsonl")
	require.NoError(t, err)
	assert.True(t, rec.Published())

	rec, err = m.Track(sampleShard(1, 301, "changed"), "shards/x.jsonl")
	require.NoError(t, err)
	assert.False(t, rec.Published())

	_, err = m.MarkPublished("unknown.jsonl", "loc")
	require.Error(t, err)
}
