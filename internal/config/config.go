// Package config loads and validates the daemon configuration. Resolution
// follows a three-layer chain: built-in defaults, then the TOML config file,
// then environment variable overrides. Unknown keys in the config file are
// fatal errors with "did you mean?" suggestions — silently ignoring a typo in
// a file nobody reads twice leads to hard-to-debug behavior.
package config

import (
	"path/filepath"
	"time"
)

// Categories are the tracked local directory categories under the base dir.
// Each category fans out per-user: <base>/<category>/<user>/...
var Categories = []string{"output", "input", "workflows"}

// Config is the full daemon configuration.
type Config struct {
	// BaseDir is the workspace root holding output/, input/ and workflows/.
	BaseDir string `toml:"base_dir"`

	// StateDir holds the key file, backup state, status file, log file and
	// journal. Must live on the durable volume to survive pod restarts.
	StateDir string `toml:"state_dir"`

	Remote RemoteConfig `toml:"remote"`
	Sync   SyncConfig   `toml:"sync"`
	Daemon DaemonConfig `toml:"daemon"`
}

// RemoteConfig describes the remote side of the replication.
type RemoteConfig struct {
	// Container pins the remote container explicitly. When set, target
	// discovery is skipped entirely — the documented answer to the
	// multiple-shared-containers ambiguity.
	Container string `toml:"container"`

	// Prefix is the fixed logical path prefix under the container.
	Prefix string `toml:"prefix"`

	// OpTimeout bounds every remote operation so a hung network call cannot
	// stall the replication loop.
	OpTimeout string `toml:"op_timeout"`
}

// SyncConfig controls per-tick copy behavior.
type SyncConfig struct {
	// Interval between replication ticks.
	Interval string `toml:"interval"`

	// MinAge is the minimum time since last modification before a file is
	// upload-eligible. Files younger than this are assumed to still be
	// written by the producer.
	MinAge string `toml:"min_age"`

	// Excludes are gitignore-style patterns for files never uploaded.
	Excludes []string `toml:"excludes"`

	// TransferWorkers caps concurrent uploads within one mapping copy.
	TransferWorkers int `toml:"transfer_workers"`

	// BandwidthLimit caps aggregate upload throughput, e.g. "50MB/s".
	// "0" or empty means unlimited.
	BandwidthLimit string `toml:"bandwidth_limit"`
}

// DaemonConfig controls process-level behavior.
type DaemonConfig struct {
	// WatchdogInterval is how often the watchdog checks daemon liveness.
	// Longer than the tick interval so a slow tick is not mistaken for death.
	WatchdogInterval string `toml:"watchdog_interval"`

	LogLevel string `toml:"log_level"`
}

// Default values. Chosen to match the behavior of the operations bundle this
// daemon replaces: one-minute ticks, 30s settle time, temp-file exclusions,
// four transfer workers, 50MB/s cap.
const (
	DefaultBaseDir          = "/workspace"
	defaultPrefix           = "PodOutput"
	defaultOpTimeout        = "2m"
	defaultInterval         = "60s"
	defaultMinAge           = "30s"
	defaultTransferWorkers  = 4
	defaultBandwidthLimit   = "50MB/s"
	defaultWatchdogInterval = "5m"
	defaultLogLevel         = "info"
)

// defaultExcludes are always-on safety patterns for partial and temporary
// files that indicate incomplete producer writes.
var defaultExcludes = []string{"*.tmp", "*.partial", "~*", ".DS_Store"}

// DefaultConfig returns a Config populated with all default values. Used as
// the starting point for TOML decoding so unset fields retain defaults, and
// as the whole config when no file exists (zero-config first run).
func DefaultConfig() *Config {
	return &Config{
		BaseDir:  DefaultBaseDir,
		StateDir: filepath.Join(DefaultBaseDir, ".podmirror"),
		Remote: RemoteConfig{
			Prefix:    defaultPrefix,
			OpTimeout: defaultOpTimeout,
		},
		Sync: SyncConfig{
			Interval:        defaultInterval,
			MinAge:          defaultMinAge,
			Excludes:        append([]string(nil), defaultExcludes...),
			TransferWorkers: defaultTransferWorkers,
			BandwidthLimit:  defaultBandwidthLimit,
		},
		Daemon: DaemonConfig{
			WatchdogInterval: defaultWatchdogInterval,
			LogLevel:         defaultLogLevel,
		},
	}
}

// Paths derived from StateDir. Methods instead of fields so a config loaded
// from any source agrees on the layout.

// KeyFilePath is where resolved credentials are materialized for the client.
func (c *Config) KeyFilePath() string { return filepath.Join(c.StateDir, "storage_key.json") }

// StatePath is the backup store file (bundle + cached target).
func (c *Config) StatePath() string { return filepath.Join(c.StateDir, "state.json") }

// StatusPath is the single-value status file the control panel polls.
func (c *Config) StatusPath() string { return filepath.Join(c.StateDir, "status") }

// LogPath is the append-only daemon log file.
func (c *Config) LogPath() string { return filepath.Join(c.StateDir, "podmirror.log") }

// JournalPath is the sqlite tick journal.
func (c *Config) JournalPath() string { return filepath.Join(c.StateDir, "journal.db") }

// PIDPath is the flock-guarded daemon pidfile.
func (c *Config) PIDPath() string { return filepath.Join(c.StateDir, "podmirror.pid") }

// Duration accessors. Validate guarantees these parse, so errors fall back
// to the default here rather than propagating.

func (c *Config) TickInterval() time.Duration {
	return parseDurationOr(c.Sync.Interval, time.Minute)
}

func (c *Config) MinFileAge() time.Duration {
	return parseDurationOr(c.Sync.MinAge, 30*time.Second)
}

func (c *Config) RemoteOpTimeout() time.Duration {
	return parseDurationOr(c.Remote.OpTimeout, 2*time.Minute)
}

func (c *Config) WatchdogCheckInterval() time.Duration {
	return parseDurationOr(c.Daemon.WatchdogInterval, 5*time.Minute)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}
