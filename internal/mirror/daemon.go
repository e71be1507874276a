// Package mirror implements the replication loop: the long-lived daemon
// that copies generated output to the remote container every tick, healing
// its own credentials and remote target when the storage backend stops
// answering.
package mirror

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studioops/podmirror/internal/blob"
	"github.com/studioops/podmirror/internal/config"
	"github.com/studioops/podmirror/internal/journal"
	"github.com/studioops/podmirror/internal/resolver"
	"github.com/studioops/podmirror/internal/secrets"
	"github.com/studioops/podmirror/internal/target"
)

// Daemon owns the replication loop state. Single-goroutine sequential: one
// tick at a time, so ticks never overlap and no locking is needed.
type Daemon struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	journal  *journal.Journal
	logger   *slog.Logger

	health Health
	client blob.Client
	bundle *secrets.Bundle
	target target.Target

	filter  *Filter
	limiter *BandwidthLimiter

	// persisted tracks whether the current bundle+target pair has been
	// saved to the backup store. Save happens once per process lifetime,
	// immediately after the first successful authenticate+locate.
	persisted bool

	// sleep is injectable for loop tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDaemon assembles a daemon. jnl may be nil (no history recorded).
func NewDaemon(cfg *config.Config, res *resolver.Resolver, jnl *journal.Journal, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	limiter, err := NewBandwidthLimiter(cfg.Sync.BandwidthLimit)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		cfg:      cfg,
		resolver: res,
		journal:  jnl,
		logger:   logger,
		health:   HealthUninitialized,
		filter:   NewFilter(cfg.Sync.Excludes, cfg.MinFileAge()),
		limiter:  limiter,
		sleep:    sleepCtx,
	}, nil
}

// Health returns the loop's current health state.
func (d *Daemon) Health() Health { return d.health }

// Target returns the currently resolved remote target. Zero until the first
// successful locate.
func (d *Daemon) Target() target.Target { return d.target }

// ListRemote returns the objects already present under the located target's
// prefix. Requires an established session.
func (d *Daemon) ListRemote(ctx context.Context) ([]blob.Object, error) {
	if d.client == nil {
		return nil, errors.New("mirror: no remote session established")
	}

	listCtx, cancel := context.WithTimeout(ctx, d.cfg.RemoteOpTimeout())
	defer cancel()

	return d.client.List(listCtx, d.target.Container, d.target.Prefix)
}

// Run executes ticks at the configured interval until ctx is canceled.
// Nothing inside a tick is fatal: every failure degrades health and is
// retried on the next tick.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("replication loop starting",
		slog.String("base_dir", d.cfg.BaseDir),
		slog.Duration("interval", d.cfg.TickInterval()),
	)

	for {
		d.Tick(ctx)

		if err := d.sleep(ctx, d.cfg.TickInterval()); err != nil {
			d.logger.Info("replication loop stopping", slog.String("reason", err.Error()))

			return nil
		}
	}
}

// Bootstrap runs the resolve → locate → persist sequence once for first-run
// setup and writes the resulting status. The replication loop does not run.
func (d *Daemon) Bootstrap(ctx context.Context) error {
	err := d.ensureSession(ctx, d.logger)

	if statusErr := WriteStatus(d.cfg.StatusPath(), d.statusValue(err)); statusErr != nil {
		d.logger.Warn("writing status file failed", slog.String("error", statusErr.Error()))
	}

	if err != nil {
		return err
	}

	d.logger.Info("bootstrap complete",
		slog.String("container", d.target.Container),
		slog.String("prefix", d.target.Prefix),
	)

	return nil
}

// TickResult summarizes one tick for logging and the journal.
type TickResult struct {
	ID     string
	Health Health
	Stats  CopyStats
	Err    error
}

// Tick runs one full replication cycle: health probe (with credential
// re-resolution on failure), mapping discovery, per-mapping copy, status and
// journal updates.
func (d *Daemon) Tick(ctx context.Context) TickResult {
	result := TickResult{ID: uuid.NewString()}
	started := time.Now()

	tickLog := d.logger.With(slog.String("tick", result.ID))

	if err := d.ensureSession(ctx, tickLog); err != nil {
		result.Err = err
		result.Health = d.health
		d.finishTick(ctx, tickLog, started, &result)

		return result
	}

	mappings, err := DiscoverMappings(d.cfg.BaseDir, d.target)
	if err != nil {
		// Local filesystem trouble; remote session is fine.
		tickLog.Error("mapping discovery failed", slog.String("error", err.Error()))
		result.Err = err
		result.Health = d.health
		d.finishTick(ctx, tickLog, started, &result)

		return result
	}

	copier := NewCopier(d.client, d.filter, d.limiter, d.cfg.Sync.TransferWorkers, d.cfg.RemoteOpTimeout(), tickLog)

	for _, m := range mappings {
		// Mappings are independent: one failing directory never rolls back
		// or blocks the others.
		stats, err := copier.CopyMapping(ctx, d.target.Container, m)
		result.Stats.merge(stats)

		if err != nil {
			if ctx.Err() != nil {
				break
			}

			tickLog.Warn("mapping copy failed",
				slog.String("category", m.Category),
				slog.String("user", m.User),
				slog.String("error", err.Error()),
			)

			result.Stats.Errors++
			if result.Stats.FirstError == "" {
				result.Stats.FirstError = err.Error()
			}
		}
	}

	result.Health = d.health
	d.finishTick(ctx, tickLog, started, &result)

	return result
}

// ensureSession makes sure the daemon holds a working client and located
// target, re-running the resolver and locator as needed. Implements the
// health state machine transitions.
func (d *Daemon) ensureSession(ctx context.Context, log *slog.Logger) error {
	if d.client != nil {
		probeCtx, cancel := context.WithTimeout(ctx, d.cfg.RemoteOpTimeout())
		err := d.client.Probe(probeCtx, d.target.Container)
		cancel()

		if err == nil {
			d.health = HealthHealthy

			return nil
		}

		// healthy → degraded: credentials expired, container vanished, or
		// the backend is down. Re-resolve from scratch.
		log.Warn("health probe failed, re-resolving credentials", slog.String("error", err.Error()))
		d.health = HealthDegraded
		d.client = nil
		d.persisted = false
	}

	if err := d.establishSession(ctx, log); err != nil {
		d.health = HealthFailed

		return err
	}

	d.health = HealthHealthy

	return nil
}

// establishSession runs resolve → locate → persist.
func (d *Daemon) establishSession(ctx context.Context, log *slog.Logger) error {
	res, err := d.resolver.Resolve(ctx)
	if err != nil {
		return err
	}

	d.client = res.Client
	d.bundle = res.Bundle

	// A cached target from the backup store skips re-discovery, but only
	// if it still answers probes — the container may have been deleted.
	if res.State != nil && res.State.Container != "" {
		cached := target.Target{Container: res.State.Container, Prefix: res.State.Prefix}

		probeCtx, cancel := context.WithTimeout(ctx, d.cfg.RemoteOpTimeout())
		err := d.client.Probe(probeCtx, cached.Container)
		cancel()

		if err == nil {
			d.target = cached
			d.persisted = true

			return nil
		}

		log.Warn("cached remote target no longer answers, re-locating",
			slog.String("container", cached.Container),
			slog.String("error", err.Error()),
		)
	}

	locateCtx, cancel := context.WithTimeout(ctx, d.cfg.RemoteOpTimeout())
	tgt, err := target.Locate(locateCtx, d.client, d.cfg, d.bundle, log)
	cancel()

	if err != nil {
		d.client = nil

		return err
	}

	d.target = tgt

	// Materialize the prefix so the remote folder is visible before the
	// first file lands. Failure is harmless; Put creates it implicitly.
	prefixCtx, cancel := context.WithTimeout(ctx, d.cfg.RemoteOpTimeout())
	if err := d.client.EnsurePrefix(prefixCtx, tgt.Container, tgt.Prefix); err != nil {
		log.Warn("creating remote prefix failed", slog.String("error", err.Error()))
	}
	cancel()

	if err := d.persistState(log); err != nil {
		// Replication still works this run; only warm restarts suffer.
		log.Warn("persisting credential state failed", slog.String("error", err.Error()))
	}

	return nil
}

// persistState saves the bundle and located target to the backup store.
func (d *Daemon) persistState(log *slog.Logger) error {
	if d.persisted {
		return nil
	}

	st := &secrets.State{
		Bundle:    d.bundle,
		Container: d.target.Container,
		Prefix:    d.target.Prefix,
	}

	if err := secrets.SaveState(d.cfg.StatePath(), st); err != nil {
		return err
	}

	d.persisted = true
	log.Info("credential state persisted",
		slog.String("source", d.bundle.Source),
		slog.String("container", d.target.Container),
	)

	return nil
}

// finishTick writes the status file, records the journal row, and logs the
// tick outcome.
func (d *Daemon) finishTick(ctx context.Context, log *slog.Logger, started time.Time, result *TickResult) {
	status := d.statusValue(result.Err)

	if err := WriteStatus(d.cfg.StatusPath(), status); err != nil {
		log.Warn("writing status file failed", slog.String("error", err.Error()))
	}

	if d.journal != nil && ctx.Err() == nil {
		rec := journal.TickRecord{
			ID:          result.ID,
			StartedAt:   started,
			FinishedAt:  time.Now(),
			Health:      string(d.health),
			FilesCopied: result.Stats.FilesCopied,
			BytesCopied: result.Stats.BytesCopied,
			ErrorCount:  result.Stats.Errors,
			FirstError:  result.Stats.FirstError,
		}

		if result.Err != nil {
			rec.ErrorCount++
			if rec.FirstError == "" {
				rec.FirstError = result.Err.Error()
			}
		}

		if err := d.journal.Record(ctx, rec); err != nil {
			log.Warn("recording tick failed", slog.String("error", err.Error()))
		}
	}

	log.Info("tick finished",
		slog.String("health", string(d.health)),
		slog.String("status", status),
		slog.Int64("files_copied", result.Stats.FilesCopied),
		slog.Int64("bytes_copied", result.Stats.BytesCopied),
		slog.Int64("errors", result.Stats.Errors),
		slog.Duration("elapsed", time.Since(started)),
	)
}

// statusValue maps the tick outcome onto the control panel's vocabulary.
func (d *Daemon) statusValue(tickErr error) string {
	if errors.Is(tickErr, resolver.ErrNoCredentials) {
		return StatusNoCredentials
	}

	if d.health == HealthFailed {
		return StatusFailed
	}

	return StatusInitialized
}

// sleepCtx sleeps for duration d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
