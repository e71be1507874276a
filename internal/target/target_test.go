package target

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studioops/podmirror/internal/blob/blobtest"
	"github.com/studioops/podmirror/internal/config"
	"github.com/studioops/podmirror/internal/secrets"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBundle() *secrets.Bundle {
	return &secrets.Bundle{KeyID: "AKI123", Secret: "s", AccountID: "studio"}
}

func TestLocate_ConfigPinWins(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Remote.Container = "pinned-bucket"

	fake := blobtest.NewFakeClient("shared-a", "shared-b")

	tgt, err := Locate(context.Background(), fake, cfg, testBundle(), testLogger())
	require.NoError(t, err)
	assert.Equal(t, "pinned-bucket", tgt.Container)
	assert.Equal(t, cfg.Remote.Prefix, tgt.Prefix)
}

func TestLocate_SingleSharedContainer(t *testing.T) {
	fake := blobtest.NewFakeClient("studio-shared")

	tgt, err := Locate(context.Background(), fake, config.DefaultConfig(), testBundle(), testLogger())
	require.NoError(t, err)
	assert.Equal(t, "studio-shared", tgt.Container)
}

func TestLocate_NoContainersFallsBackToPrivateRoot(t *testing.T) {
	fake := blobtest.NewFakeClient()

	tgt, err := Locate(context.Background(), fake, config.DefaultConfig(), testBundle(), testLogger())
	require.NoError(t, err)
	assert.Equal(t, "pm-studio", tgt.Container)

	// The private root was created.
	require.NoError(t, fake.Probe(context.Background(), "pm-studio"))
}

func TestLocate_PrivateRootExcludedFromSharedCandidates(t *testing.T) {
	// Only the daemon's own fallback bucket exists: not a shared container.
	fake := blobtest.NewFakeClient("pm-studio")

	tgt, err := Locate(context.Background(), fake, config.DefaultConfig(), testBundle(), testLogger())
	require.NoError(t, err)
	assert.Equal(t, "pm-studio", tgt.Container)
}

func TestLocate_MultipleSharedIsDeterministic(t *testing.T) {
	fake := blobtest.NewFakeClient("zeta-drive", "alpha-drive", "mid-drive")

	first, err := Locate(context.Background(), fake, config.DefaultConfig(), testBundle(), testLogger())
	require.NoError(t, err)
	assert.Equal(t, "alpha-drive", first.Container)

	// Repeated calls return the same container, not a re-randomized pick.
	for range 5 {
		again, err := Locate(context.Background(), fake, config.DefaultConfig(), testBundle(), testLogger())
		require.NoError(t, err)
		assert.Equal(t, first.Container, again.Container)
	}
}

func TestLocate_ListFailurePropagates(t *testing.T) {
	fake := blobtest.NewFakeClient("studio-shared")
	fake.ListContainersErr = errors.New("remote down")

	_, err := Locate(context.Background(), fake, config.DefaultConfig(), testBundle(), testLogger())
	assert.Error(t, err)
}

func TestCategoryPath(t *testing.T) {
	tgt := Target{Container: "studio-shared", Prefix: "PodOutput"}
	assert.Equal(t, "PodOutput/output/alice", tgt.CategoryPath("output", "alice"))

	trailing := Target{Container: "c", Prefix: "PodOutput/"}
	assert.Equal(t, "PodOutput/workflows/bob", trailing.CategoryPath("workflows", "bob"))
}

func TestPrivateRootName_FallsBackToKeyID(t *testing.T) {
	b := &secrets.Bundle{KeyID: "AKI123", Secret: "s"}
	assert.Equal(t, "pm-aki123", privateRootName(b))
}
