// Package secrets handles the credential bundle: parsing candidate secret
// material, materializing it to the key file the storage client reads, and
// persisting the last-known-good bundle (plus the resolved remote target) to
// the durable volume. This is a leaf package imported by resolver/, target/
// and the daemon to avoid import cycles.
package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FilePerms restricts key and state files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the state directory.
const DirPerms = 0o700

// Bundle is a service-account-style storage key. The JSON shape is what the
// hosting platform injects into secret environment variables and what the
// storage client reads back from the key file.
type Bundle struct {
	KeyID     string `json:"key_id"`
	Secret    string `json:"secret"`
	Endpoint  string `json:"endpoint,omitempty"`
	Region    string `json:"region,omitempty"`
	AccountID string `json:"account_id,omitempty"`

	// Source names the resolver step that produced this bundle
	// (e.g. "backup_store", "env:POD_STORAGE_KEY"). Not serialized into
	// the key file — it is diagnostic, not secret material.
	Source string `json:"-"`
}

// Parse decodes raw secret material into a Bundle and checks its shape.
// Returns an error for anything that is not a well-formed key: this is the
// gate the resolver uses when scanning arbitrary environment variables.
func Parse(raw string) (*Bundle, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "{") {
		return nil, errors.New("secrets: not a JSON key")
	}

	var b Bundle
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return nil, fmt.Errorf("secrets: decoding key: %w", err)
	}

	if b.KeyID == "" || b.Secret == "" {
		return nil, errors.New("secrets: key missing key_id or secret")
	}

	return &b, nil
}

// WriteKeyFile materializes the bundle to the path the storage client reads,
// atomically (write-to-temp + rename) with 0600 permissions. Never logs key
// values.
func WriteKeyFile(path string, b *Bundle) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("secrets: encoding key: %w", err)
	}

	return writeFileAtomic(path, data)
}

// ReadKeyFile loads a previously materialized key file. Returns (nil, nil)
// if the file does not exist.
func ReadKeyFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("secrets: reading %s: %w", path, err)
	}

	b, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("secrets: %s: %w", path, err)
	}

	return b, nil
}

// writeFileAtomic writes data to path via a temp file in the same directory
// followed by rename, so readers never observe a partially written secret.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("secrets: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("secrets: creating temp file: %w", err)
	}

	tmpName := tmp.Name()

	if err := tmp.Chmod(FilePerms); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("secrets: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("secrets: writing temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("secrets: closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("secrets: renaming into place: %w", err)
	}

	return nil
}
