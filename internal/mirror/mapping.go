package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/studioops/podmirror/internal/config"
	"github.com/studioops/podmirror/internal/target"
)

// Mapping pairs a local directory with its remote key prefix.
type Mapping struct {
	Category  string
	User      string
	LocalDir  string
	RemoteDir string
}

// DiscoverMappings walks the category directories under the base dir and
// returns one mapping per existing, non-empty <category>/<user> directory.
// Discovery runs every tick so users who appear mid-run are picked up
// without a restart. Results are sorted for a stable copy order.
func DiscoverMappings(baseDir string, tgt target.Target) ([]Mapping, error) {
	var out []Mapping

	for _, category := range config.Categories {
		categoryDir := filepath.Join(baseDir, category)

		entries, err := os.ReadDir(categoryDir)
		if os.IsNotExist(err) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("mirror: reading %s: %w", categoryDir, err)
		}

		for _, e := range entries {
			if !e.IsDir() {
				continue
			}

			userDir := filepath.Join(categoryDir, e.Name())

			empty, err := isEmptyDir(userDir)
			if err != nil {
				return nil, fmt.Errorf("mirror: checking %s: %w", userDir, err)
			}

			if empty {
				continue
			}

			out = append(out, Mapping{
				Category:  category,
				User:      e.Name(),
				LocalDir:  userDir,
				RemoteDir: tgt.CategoryPath(category, e.Name()),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}

		return out[i].User < out[j].User
	})

	return out, nil
}

func isEmptyDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}

	return len(entries) == 0, nil
}
