package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validKey = `{"key_id":"AKI123","secret":"s3cr3t","endpoint":"https://blob.example.com","region":"eu-1","account_id":"studio"}`

func TestParse_ValidKey(t *testing.T) {
	b, err := Parse(validKey)
	require.NoError(t, err)
	assert.Equal(t, "AKI123", b.KeyID)
	assert.Equal(t, "s3cr3t", b.Secret)
	assert.Equal(t, "https://blob.example.com", b.Endpoint)
	assert.Equal(t, "eu-1", b.Region)
	assert.Equal(t, "studio", b.AccountID)
}

func TestParse_LeadingWhitespace(t *testing.T) {
	b, err := Parse("  \n" + validKey + "\n")
	require.NoError(t, err)
	assert.Equal(t, "AKI123", b.KeyID)
}

func TestParse_RejectsNonJSON(t *testing.T) {
	_, err := Parse("hunter2")
	assert.Error(t, err)
}

func TestParse_RejectsEmptyValue(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
}

func TestParse_RejectsJSONWithoutKeyFields(t *testing.T) {
	// Well-formed JSON that is some other secret entirely.
	_, err := Parse(`{"api_token":"abc"}`)
	assert.Error(t, err)
}

func TestWriteKeyFile_RoundTripAndPerms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "storage_key.json")

	b, err := Parse(validKey)
	require.NoError(t, err)
	require.NoError(t, WriteKeyFile(path, b))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	got, err := ReadKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, b.KeyID, got.KeyID)
	assert.Equal(t, b.Secret, got.Secret)
}

func TestReadKeyFile_MissingReturnsNil(t *testing.T) {
	got, err := ReadKeyFile(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveState_LoadState_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	b, err := Parse(validKey)
	require.NoError(t, err)

	st := &State{Bundle: b, Container: "studio-shared", Prefix: "PodOutput"}
	require.NoError(t, SaveState(path, st))

	got, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, "studio-shared", got.Container)
	assert.Equal(t, "PodOutput", got.Prefix)
	assert.Equal(t, "AKI123", got.Bundle.KeyID)
	assert.Equal(t, SourceBackupStore, got.Bundle.Source)
}

func TestSaveState_RejectsEmptyBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	assert.Error(t, SaveState(path, nil))
	assert.Error(t, SaveState(path, &State{}))
}

func TestLoadState_MissingReturnsNil(t *testing.T) {
	got, err := LoadState(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLoadState_CorruptBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"container":"x"}`), 0o600))

	_, err := LoadState(path)
	assert.Error(t, err)
}
