package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studioops/podmirror/internal/blob"
)

// Copier replicates one mapping's local directory to its remote prefix.
// Additive-only: it uploads new and changed files and touches nothing else.
// Files deleted locally stay on the remote — the remote is the archival
// copy, not a mirror.
type Copier struct {
	client    blob.Client
	filter    *Filter
	limiter   *BandwidthLimiter
	workers   int
	opTimeout time.Duration
	logger    *slog.Logger
}

// NewCopier assembles a copier. limiter may be nil (unlimited).
func NewCopier(client blob.Client, filter *Filter, limiter *BandwidthLimiter, workers int, opTimeout time.Duration, logger *slog.Logger) *Copier {
	if logger == nil {
		logger = slog.Default()
	}

	if workers < 1 {
		workers = 1
	}

	return &Copier{
		client:    client,
		filter:    filter,
		limiter:   limiter,
		workers:   workers,
		opTimeout: opTimeout,
		logger:    logger,
	}
}

// CopyStats summarizes one mapping copy.
type CopyStats struct {
	FilesCopied  int64
	BytesCopied  int64
	FilesSkipped int64
	Errors       int64
	FirstError   string
}

// merge folds other into s.
func (s *CopyStats) merge(other CopyStats) {
	s.FilesCopied += other.FilesCopied
	s.BytesCopied += other.BytesCopied
	s.FilesSkipped += other.FilesSkipped
	s.Errors += other.Errors

	if s.FirstError == "" {
		s.FirstError = other.FirstError
	}
}

// localFile is one upload candidate found by the walk.
type localFile struct {
	absPath string
	relPath string
	size    int64
	modTime time.Time
}

// CopyMapping walks the mapping's local directory and uploads every
// eligible new or changed file. Per-file failures are counted, logged and
// skipped — one bad file never blocks the rest of the directory.
func (c *Copier) CopyMapping(ctx context.Context, container string, m Mapping) (CopyStats, error) {
	files, skipped, err := c.collect(m)
	if err != nil {
		return CopyStats{}, err
	}

	stats := CopyStats{FilesSkipped: skipped}
	if len(files) == 0 {
		return stats, nil
	}

	var (
		copied, bytes, skippedUnchanged, errCount atomic.Int64
		firstErrMu                                sync.Mutex
		firstErr                                  string
	)

	recordErr := func(path string, err error) {
		errCount.Add(1)
		c.logger.Warn("file copy failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		firstErrMu.Lock()
		if firstErr == "" {
			firstErr = err.Error()
		}
		firstErrMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, f := range files {
		g.Go(func() error {
			// Context cancellation stops dispatching; in-flight ops see it
			// through their own bounded contexts.
			if gctx.Err() != nil {
				return gctx.Err()
			}

			n, err := c.copyOne(gctx, container, m, f)
			switch {
			case err != nil:
				recordErr(f.relPath, err)
			case n < 0:
				skippedUnchanged.Add(1)
			default:
				copied.Add(1)
				bytes.Add(n)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return stats, err
	}

	stats.FilesCopied = copied.Load()
	stats.BytesCopied = bytes.Load()
	stats.FilesSkipped += skippedUnchanged.Load()
	stats.Errors = errCount.Load()
	stats.FirstError = firstErr

	return stats, ctx.Err()
}

// collect walks the local directory, applying the filter. Returns eligible
// files and the count of filtered-out ones.
func (c *Copier) collect(m Mapping) ([]localFile, int64, error) {
	var files []localFile
	var skipped int64

	err := filepath.WalkDir(m.LocalDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(m.LocalDir, path)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			// Deleted between walk and stat — gone next tick anyway.
			return nil
		}

		if reason := c.filter.Check(rel, info.ModTime()); reason != SkipNone {
			skipped++
			c.logger.Debug("file skipped",
				slog.String("path", rel),
				slog.String("reason", string(reason)),
			)

			return nil
		}

		files = append(files, localFile{
			absPath: path,
			relPath: rel,
			size:    info.Size(),
			modTime: info.ModTime(),
		})

		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("mirror: walking %s: %w", m.LocalDir, err)
	}

	return files, skipped, nil
}

// copyOne uploads a single file unless the remote copy is already current.
// Returns the byte count uploaded, or -1 when the remote was unchanged.
func (c *Copier) copyOne(ctx context.Context, container string, m Mapping, f localFile) (int64, error) {
	key := m.RemoteDir + "/" + f.relPath

	statCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	remote, err := c.client.Stat(statCtx, container, key)
	cancel()

	if err != nil {
		return 0, err
	}

	// Copy-if-changed: same size and same recorded source mtime means the
	// remote copy is current. Seconds precision — that is what survives the
	// metadata round trip.
	if remote != nil && remote.Size == f.size && remote.SourceModTime.Unix() == f.modTime.Unix() {
		return -1, nil
	}

	file, err := os.Open(f.absPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Deleted since the walk. Never delete remotely; just move on.
			return -1, nil
		}

		return 0, err
	}
	defer file.Close()

	putCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	reader := c.limiter.WrapReader(putCtx, file)

	if err := c.client.Put(putCtx, container, key, reader, f.size, f.modTime); err != nil {
		return 0, err
	}

	c.logger.Info("file copied",
		slog.String("key", key),
		slog.Int64("bytes", f.size),
	)

	return f.size, nil
}
