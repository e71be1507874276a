// Package target discovers the remote container the daemon writes into.
// The destination account may see zero or more shared containers and the
// right one is not known in advance; the selection policy here is the
// documented answer to that ambiguity.
package target

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studioops/podmirror/internal/blob"
	"github.com/studioops/podmirror/internal/config"
	"github.com/studioops/podmirror/internal/secrets"
)

// privateRootPrefix names the fallback container created when the
// credential sees no shared container at all.
const privateRootPrefix = "pm-"

// Target is the chosen remote container plus the logical path prefix under
// which the category subpaths live.
type Target struct {
	Container string
	Prefix    string
}

// CategoryPath returns the remote key prefix for one local category and
// user, e.g. "PodOutput/output/alice".
func (t Target) CategoryPath(category, user string) string {
	return strings.TrimSuffix(t.Prefix, "/") + "/" + category + "/" + user
}

// Locate selects the remote container for the given authenticated client.
//
// Policy, in order:
//   - a container pinned in config wins outright;
//   - exactly one visible shared container: use it;
//   - none: fall back to the credential owner's private root, a container
//     derived from the account ID, created on demand;
//   - several: use the first by name and warn. Containers are sorted, so
//     repeated calls pick the same one; operators with several shared
//     containers should pin remote.container instead of relying on this.
func Locate(ctx context.Context, client blob.Client, cfg *config.Config, bundle *secrets.Bundle, logger *slog.Logger) (Target, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Remote.Container != "" {
		logger.Info("remote container pinned by config",
			slog.String("container", cfg.Remote.Container),
		)

		return Target{Container: cfg.Remote.Container, Prefix: cfg.Remote.Prefix}, nil
	}

	containers, err := client.ListContainers(ctx)
	if err != nil {
		return Target{}, fmt.Errorf("target: listing containers: %w", err)
	}

	private := privateRootName(bundle)
	shared := make([]string, 0, len(containers))

	for _, c := range containers {
		if c.Name != private {
			shared = append(shared, c.Name)
		}
	}

	switch len(shared) {
	case 0:
		logger.Info("no shared container visible, using private root",
			slog.String("container", private),
		)

		if err := client.EnsureContainer(ctx, private); err != nil {
			return Target{}, fmt.Errorf("target: creating private root: %w", err)
		}

		return Target{Container: private, Prefix: cfg.Remote.Prefix}, nil

	case 1:
		logger.Info("selected shared container", slog.String("container", shared[0]))

		return Target{Container: shared[0], Prefix: cfg.Remote.Prefix}, nil

	default:
		// ListContainers is sorted, so shared[0] is stable across calls
		// and restarts. Still ambiguous — the operator should pin one.
		logger.Warn("multiple shared containers visible, using first by name; set remote.container to pin the target",
			slog.String("selected", shared[0]),
			slog.String("candidates", strings.Join(shared, ",")),
		)

		return Target{Container: shared[0], Prefix: cfg.Remote.Prefix}, nil
	}
}

// privateRootName derives the owner's private root container name. Falls
// back to the key ID when the bundle carries no account ID.
func privateRootName(b *secrets.Bundle) string {
	id := b.AccountID
	if id == "" {
		id = strings.ToLower(b.KeyID)
	}

	return privateRootPrefix + strings.ToLower(id)
}
