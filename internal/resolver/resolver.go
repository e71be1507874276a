// Package resolver locates usable storage credentials from an ordered list
// of sources and materializes the winner to the key file the storage client
// reads. The chain exists because the hosting platform's secret injection is
// unreliable across restarts: the friendly variable name may or may not
// survive to the second run, the prefixed name may appear instead, and a
// previously persisted bundle may be the only source left.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/studioops/podmirror/internal/blob"
	"github.com/studioops/podmirror/internal/config"
	"github.com/studioops/podmirror/internal/secrets"
)

// FriendlyEnvVar is the documented variable name operators set directly.
const FriendlyEnvVar = "POD_STORAGE_KEY"

// PlatformPrefix is the prefix the hosting platform prepends when it
// injects operator-defined secrets into the environment.
const PlatformPrefix = "RUNPOD_SECRET_"

// ErrNoCredentials means no source yielded a bundle that authenticates.
// Recoverable: the platform may inject secrets after a short boot delay, so
// callers retry on the next tick instead of exiting.
var ErrNoCredentials = errors.New("resolver: no credential source authenticated")

// ClientFactory builds a storage client from a candidate bundle. Injected
// so tests can substitute a fake backend.
type ClientFactory func(ctx context.Context, b *secrets.Bundle) (blob.Client, error)

// Resolver tries credential sources in priority order.
type Resolver struct {
	cfg     *config.Config
	factory ClientFactory
	logger  *slog.Logger

	// environ is injectable for tests; defaults to os.Environ.
	environ func() []string
}

// New creates a Resolver.
func New(cfg *config.Config, factory ClientFactory, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{cfg: cfg, factory: factory, logger: logger, environ: os.Environ}
}

// SetEnviron overrides the environment source. Tests use this to isolate
// the resolver from the process environment.
func (r *Resolver) SetEnviron(fn func() []string) { r.environ = fn }

// Result is a successfully validated credential set.
type Result struct {
	Bundle *secrets.Bundle
	Client blob.Client

	// State is the backup-store state the bundle came from, when the
	// winning source was the backup store. Carries the cached remote
	// target so healthy restarts skip re-discovery.
	State *secrets.State
}

// candidate is one untried credential source.
type candidate struct {
	source string
	bundle *secrets.Bundle
	state  *secrets.State
}

// Resolve tries each source in priority order until one authenticates.
// Every candidate is materialized to the key file and validated with a
// container-list probe; the first to succeed wins. Returns ErrNoCredentials
// when the chain is exhausted.
func (r *Resolver) Resolve(ctx context.Context) (*Result, error) {
	candidates := r.gatherCandidates()
	if len(candidates) == 0 {
		r.logger.Info("no credential candidates found in backup store or environment")

		return nil, ErrNoCredentials
	}

	for _, c := range candidates {
		client, err := r.validate(ctx, c.bundle)
		if err != nil {
			r.logger.Warn("credential candidate rejected",
				slog.String("source", c.source),
				slog.String("error", err.Error()),
			)

			continue
		}

		r.logger.Info("credentials resolved",
			slog.String("source", c.source),
			slog.String("key_id", c.bundle.KeyID),
		)

		return &Result{Bundle: c.bundle, Client: client, State: c.state}, nil
	}

	return nil, ErrNoCredentials
}

// gatherCandidates collects parseable bundles from every source, in
// priority order, tagging each with the source that produced it.
func (r *Resolver) gatherCandidates() []candidate {
	var out []candidate

	seen := make(map[string]bool)

	add := func(source string, b *secrets.Bundle, st *secrets.State) {
		// The same key injected under several names only needs one probe.
		if seen[b.KeyID+"\x00"+b.Secret] {
			return
		}

		seen[b.KeyID+"\x00"+b.Secret] = true
		b.Source = source
		out = append(out, candidate{source: source, bundle: b, state: st})
	}

	// 1. Backup store — fastest path on a warm restart.
	if st, err := secrets.LoadState(r.cfg.StatePath()); err != nil {
		r.logger.Warn("backup store unreadable", slog.String("error", err.Error()))
	} else if st != nil {
		add(secrets.SourceBackupStore, st.Bundle, st)
	}

	env := r.envMap()

	// 2. Friendly name set directly by an operator.
	if raw, ok := env[FriendlyEnvVar]; ok {
		if b, err := secrets.Parse(raw); err == nil {
			add("env:"+FriendlyEnvVar, b, nil)
		}
	}

	// 3. The platform-rewritten name.
	prefixed := PlatformPrefix + FriendlyEnvVar
	if raw, ok := env[prefixed]; ok {
		if b, err := secrets.Parse(raw); err == nil {
			add("env:"+prefixed, b, nil)
		}
	}

	// 4. Any other platform-injected secret that parses as a key. Sorted
	// for a deterministic probe order.
	for _, name := range sortedNames(env) {
		if !strings.HasPrefix(name, PlatformPrefix) || name == prefixed {
			continue
		}

		if b, err := secrets.Parse(env[name]); err == nil {
			add("env:"+name, b, nil)
		}
	}

	// 5. Defensive sweep: any variable at all whose value parses as a key.
	// Platform secret naming has been observed to vary between runs.
	for _, name := range sortedNames(env) {
		if name == FriendlyEnvVar || strings.HasPrefix(name, PlatformPrefix) {
			continue
		}

		if b, err := secrets.Parse(env[name]); err == nil {
			add("env:"+name, b, nil)
		}
	}

	return out
}

// validate materializes the bundle to the key file and runs the cheap
// list-containers probe through a freshly built client.
func (r *Resolver) validate(ctx context.Context, b *secrets.Bundle) (blob.Client, error) {
	if err := secrets.WriteKeyFile(r.cfg.KeyFilePath(), b); err != nil {
		return nil, err
	}

	client, err := r.factory(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("resolver: building client: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.RemoteOpTimeout())
	defer cancel()

	if _, err := client.ListContainers(probeCtx); err != nil {
		return nil, fmt.Errorf("resolver: probe failed: %w", err)
	}

	return client, nil
}

// envMap parses environ() into a name→value map.
func (r *Resolver) envMap() map[string]string {
	out := make(map[string]string)

	for _, kv := range r.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if ok {
			out[name] = value
		}
	}

	return out
}

func sortedNames(env map[string]string) []string {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
