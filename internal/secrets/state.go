package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// SourceBackupStore tags bundles recovered from the persisted state file.
const SourceBackupStore = "backup_store"

// State is the backup store's on-disk format: the last-known-good bundle and
// the remote target resolved for it. A saved state must make a subsequent
// cold-start resolve succeed with no external secret available — that is the
// resilience property the whole daemon hangs on.
type State struct {
	Bundle *Bundle `json:"bundle"`

	// Container and Prefix cache the located remote target so healthy ticks
	// skip re-discovery. Empty until the first successful locate.
	Container string `json:"container,omitempty"`
	Prefix    string `json:"prefix,omitempty"`
}

// SaveState persists the state file atomically with owner-only permissions.
func SaveState(path string, st *State) error {
	if st == nil || st.Bundle == nil {
		return errors.New("secrets: refusing to save state without a bundle")
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("secrets: encoding state: %w", err)
	}

	return writeFileAtomic(path, data)
}

// LoadState reads the persisted state. Returns (nil, nil) if no state file
// exists — a cold pod with a fresh volume, not an error.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("secrets: reading state %s: %w", path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("secrets: decoding state %s: %w", path, err)
	}

	if st.Bundle == nil || st.Bundle.KeyID == "" || st.Bundle.Secret == "" {
		return nil, fmt.Errorf("secrets: state %s has no usable bundle", path)
	}

	st.Bundle.Source = SourceBackupStore

	return &st, nil
}
