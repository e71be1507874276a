// Package blob abstracts the remote storage backend behind the small
// copy/list/mkdir surface the daemon needs. The daemon never deletes through
// this interface — there is deliberately no delete operation, so the
// additive-only replication policy is enforced by the type system rather
// than by discipline.
package blob

import (
	"context"
	"io"
	"time"
)

// Container is a remote storage container visible to a credential.
type Container struct {
	Name      string
	CreatedAt time.Time
}

// Object describes a remote object for copy-if-changed decisions.
type Object struct {
	Key  string
	Size int64

	// SourceModTime is the local file's modification time recorded as
	// object metadata at upload. Zero when the object was written by
	// something other than this daemon.
	SourceModTime time.Time
}

// Client is the remote-copy primitive. Implementations must make Put safe
// to repeat: re-uploading an unchanged file never corrupts or deletes the
// remote copy.
type Client interface {
	// ListContainers returns every container visible to the credential.
	ListContainers(ctx context.Context) ([]Container, error)

	// EnsureContainer creates the named container if it does not exist.
	// Idempotent.
	EnsureContainer(ctx context.Context, name string) error

	// Probe performs the cheapest possible authenticated operation against
	// the container. Used to validate credentials and as the per-tick
	// health check.
	Probe(ctx context.Context, container string) error

	// EnsurePrefix creates a directory marker under the container so the
	// logical layout is browsable even before any file lands. Idempotent.
	EnsurePrefix(ctx context.Context, container, prefix string) error

	// Stat returns metadata for a single object, or (nil, nil) when the
	// object does not exist.
	Stat(ctx context.Context, container, key string) (*Object, error)

	// Put uploads an object, overwriting any existing copy, and records the
	// source modification time as metadata.
	Put(ctx context.Context, container, key string, r io.Reader, size int64, srcModTime time.Time) error

	// List returns the objects under the given key prefix.
	List(ctx context.Context, container, prefix string) ([]Object, error)
}

// sourceModTimeKey is the metadata key carrying the local mtime echo.
const sourceModTimeKey = "src-mtime"
