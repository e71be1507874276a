package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStatus_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")

	require.NoError(t, WriteStatus(path, StatusInitialized))

	got, err := ReadStatus(path)
	require.NoError(t, err)
	assert.Equal(t, StatusInitialized, got)
}

func TestWriteStatus_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")

	require.NoError(t, WriteStatus(path, StatusNoCredentials))
	require.NoError(t, WriteStatus(path, StatusInitialized))

	got, err := ReadStatus(path)
	require.NoError(t, err)
	assert.Equal(t, StatusInitialized, got)
}

func TestWriteStatus_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "state", "status")

	require.NoError(t, WriteStatus(path, StatusFailed))

	got, err := ReadStatus(path)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got)
}

func TestWriteStatus_PanelReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status")
	require.NoError(t, WriteStatus(path, StatusInitialized))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(statusFilePerms), info.Mode().Perm())
}

func TestReadStatus_MissingFile(t *testing.T) {
	got, err := ReadStatus(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
