package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment variable names for overrides.
const (
	EnvConfig  = "PODMIRROR_CONFIG"
	EnvBaseDir = "PODMIRROR_BASE_DIR"
)

// configFileName is the default config file name under the base dir.
const configFileName = "podmirror.toml"

// maxSuggestDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxSuggestDistance = 3

// knownKeys are the valid dotted keys in the config file.
var knownKeys = map[string]bool{
	"base_dir": true, "state_dir": true,
	"remote.container": true, "remote.prefix": true, "remote.op_timeout": true,
	"sync.interval": true, "sync.min_age": true, "sync.excludes": true,
	"sync.transfer_workers": true, "sync.bandwidth_limit": true,
	"daemon.watchdog_interval": true, "daemon.log_level": true,
}

// knownKeysList is the sorted slice form of knownKeys for edit-distance
// matching, sorted for deterministic suggestions.
var knownKeysList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. Supports the zero-config first
// run on a freshly provisioned pod.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve applies the full override chain: defaults -> config file -> env.
// The config file path itself resolves as PODMIRROR_CONFIG, else
// <base_dir>/podmirror.toml where base_dir comes from PODMIRROR_BASE_DIR or
// the default workspace root.
func Resolve() (*Config, error) {
	baseDir := os.Getenv(EnvBaseDir)
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}

	cfgPath := os.Getenv(EnvConfig)
	if cfgPath == "" {
		cfgPath = filepath.Join(baseDir, configFileName)
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// A base dir from the environment overrides the file value, and drags
	// the derived state dir along unless the file pinned one explicitly.
	if env := os.Getenv(EnvBaseDir); env != "" {
		if cfg.StateDir == filepath.Join(cfg.BaseDir, ".podmirror") {
			cfg.StateDir = filepath.Join(env, ".podmirror")
		}

		cfg.BaseDir = env
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// checkUnknownKeys returns an error listing any keys present in the TOML
// file that do not correspond to known configuration, with suggestions.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(undecoded))

	for _, key := range undecoded {
		name := key.String()
		msg := fmt.Sprintf("unknown key %q", name)

		if suggestion := closestKnownKey(name); suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}

		msgs = append(msgs, msg)
	}

	return errors.New(strings.Join(msgs, "; "))
}

// closestKnownKey returns the known key with the smallest edit distance to
// name, or "" if nothing is close enough to suggest.
func closestKnownKey(name string) string {
	best := ""
	bestDist := maxSuggestDistance + 1

	for _, k := range knownKeysList {
		if d := levenshtein(name, k); d < bestDist {
			best, bestDist = k, d
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i

		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
