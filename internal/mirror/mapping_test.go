package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studioops/podmirror/internal/target"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscoverMappings_PerUserFanOut(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "output", "alice", "img1.png"), "png")
	writeFile(t, filepath.Join(base, "output", "bob", "img2.png"), "png")
	writeFile(t, filepath.Join(base, "workflows", "alice", "flow.json"), "{}")

	tgt := target.Target{Container: "c", Prefix: "PodOutput"}

	mappings, err := DiscoverMappings(base, tgt)
	require.NoError(t, err)
	require.Len(t, mappings, 3)

	assert.Equal(t, "output", mappings[0].Category)
	assert.Equal(t, "alice", mappings[0].User)
	assert.Equal(t, filepath.Join(base, "output", "alice"), mappings[0].LocalDir)
	assert.Equal(t, "PodOutput/output/alice", mappings[0].RemoteDir)

	assert.Equal(t, "bob", mappings[1].User)
	assert.Equal(t, "workflows", mappings[2].Category)
	assert.Equal(t, "PodOutput/workflows/alice", mappings[2].RemoteDir)
}

func TestDiscoverMappings_SkipsEmptyUserDirs(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "output", "ghost"), 0o755))
	writeFile(t, filepath.Join(base, "output", "alice", "img.png"), "png")

	mappings, err := DiscoverMappings(base, target.Target{Prefix: "PodOutput"})
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "alice", mappings[0].User)
}

func TestDiscoverMappings_MissingCategoriesIgnored(t *testing.T) {
	base := t.TempDir()
	// No output/input/workflows at all: a fresh pod before first render.
	mappings, err := DiscoverMappings(base, target.Target{Prefix: "PodOutput"})
	require.NoError(t, err)
	assert.Empty(t, mappings)
}

func TestDiscoverMappings_IgnoresStrayFilesInCategoryDir(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "output", "notes.txt"), "stray")
	writeFile(t, filepath.Join(base, "output", "alice", "img.png"), "png")

	mappings, err := DiscoverMappings(base, target.Target{Prefix: "PodOutput"})
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "alice", mappings[0].User)
}

func TestDiscoverMappings_NewUserAppearsNextCall(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "output", "alice", "img.png"), "png")

	tgt := target.Target{Prefix: "PodOutput"}

	first, err := DiscoverMappings(base, tgt)
	require.NoError(t, err)
	require.Len(t, first, 1)

	writeFile(t, filepath.Join(base, "output", "carol", "img.png"), "png")

	second, err := DiscoverMappings(base, tgt)
	require.NoError(t, err)
	assert.Len(t, second, 2)
}
