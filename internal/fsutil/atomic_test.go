package fsutil_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_CreatesParentAndReplaces(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, fsutil.WriteFileAtomic(dest, []byte("first")))
	require.NoError(t, fsutil.WriteFileAtomic(dest, []byte("second")))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteAtomic_FailureKeepsPreviousContent(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, fsutil.WriteFileAtomic(dest, []byte("good")))

	boom := errors.New("boom")
	err := fsutil.WriteAtomic(dest, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "good", string(data))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
