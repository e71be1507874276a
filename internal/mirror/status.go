package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// statusFilePerms lets the control panel (a different process, same owner
// group) read the status value.
const statusFilePerms = 0o644

// WriteStatus writes the single-value status file atomically. This file and
// the log are the daemon's entire interface to the control panel.
func WriteStatus(path, status string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mirror: creating status directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return fmt.Errorf("mirror: creating status temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.WriteString(status + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("mirror: writing status: %w", err)
	}

	if err := tmp.Chmod(statusFilePerms); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("mirror: setting status permissions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("mirror: closing status temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("mirror: renaming status into place: %w", err)
	}

	return nil
}

// ReadStatus reads the status file value. Returns "" when the file does not
// exist (daemon never ran).
func ReadStatus(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("mirror: reading status: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}
