package config

import (
	"fmt"
	"time"
)

// validLogLevels for daemon.log_level.
var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks a Config for internal consistency. Called after every
// load so downstream accessors can assume parseable values.
func Validate(c *Config) error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir must not be empty")
	}

	if c.StateDir == "" {
		return fmt.Errorf("state_dir must not be empty")
	}

	if c.Remote.Prefix == "" {
		return fmt.Errorf("remote.prefix must not be empty")
	}

	for _, d := range []struct {
		key, val string
	}{
		{"sync.interval", c.Sync.Interval},
		{"sync.min_age", c.Sync.MinAge},
		{"remote.op_timeout", c.Remote.OpTimeout},
		{"daemon.watchdog_interval", c.Daemon.WatchdogInterval},
	} {
		dur, err := time.ParseDuration(d.val)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", d.key, d.val, err)
		}

		if dur <= 0 {
			return fmt.Errorf("%s: duration %q must be positive", d.key, d.val)
		}
	}

	if c.Sync.TransferWorkers < 1 {
		return fmt.Errorf("sync.transfer_workers must be at least 1, got %d", c.Sync.TransferWorkers)
	}

	if _, err := ParseBandwidthRate(c.Sync.BandwidthLimit); err != nil {
		return fmt.Errorf("sync.bandwidth_limit: %w", err)
	}

	if !validLogLevels[c.Daemon.LogLevel] {
		return fmt.Errorf("daemon.log_level: unknown level %q", c.Daemon.LogLevel)
	}

	return nil
}
