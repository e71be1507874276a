// Package journal records per-tick replication outcomes in sqlite so the
// control panel (and the history command) can show what the daemon has been
// doing without parsing the log file. The journal is observability only:
// replication eligibility decisions never read it, and deleting it loses
// nothing but history.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit bounds WAL growth on the shared pod volume.
const walJournalSizeLimit = 32 * 1024 * 1024

// TickRecord is one replication tick's outcome.
type TickRecord struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Health      string    `json:"health"`
	FilesCopied int64     `json:"files_copied"`
	BytesCopied int64     `json:"bytes_copied"`
	ErrorCount  int64     `json:"error_count"`
	FirstError  string    `json:"first_error,omitempty"`
}

// Journal wraps the sqlite database. Single writer — the daemon's tick loop
// is sequential, so no internal locking is needed beyond the driver's.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the journal database at dbPath and applies
// pending migrations. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()

		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()

		return nil, err
	}

	return &Journal{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts a tick outcome.
func (j *Journal) Record(ctx context.Context, rec TickRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO ticks (id, started_at, finished_at, health, files_copied, bytes_copied, error_count, first_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.StartedAt.UTC().Unix(),
		rec.FinishedAt.UTC().Unix(),
		rec.Health,
		rec.FilesCopied,
		rec.BytesCopied,
		rec.ErrorCount,
		rec.FirstError,
	)
	if err != nil {
		return fmt.Errorf("journal: recording tick %s: %w", rec.ID, err)
	}

	return nil
}

// Recent returns up to limit ticks, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]TickRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, health, files_copied, bytes_copied, error_count, first_error
		FROM ticks ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: querying ticks: %w", err)
	}
	defer rows.Close()

	var out []TickRecord

	for rows.Next() {
		var rec TickRecord
		var started, finished int64

		if err := rows.Scan(&rec.ID, &started, &finished, &rec.Health,
			&rec.FilesCopied, &rec.BytesCopied, &rec.ErrorCount, &rec.FirstError); err != nil {
			return nil, fmt.Errorf("journal: scanning tick: %w", err)
		}

		rec.StartedAt = time.Unix(started, 0).UTC()
		rec.FinishedAt = time.Unix(finished, 0).UTC()
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating ticks: %w", err)
	}

	return out, nil
}

// Totals returns lifetime copied file and byte counts, for the status
// readout.
func (j *Journal) Totals(ctx context.Context) (files, bytes int64, err error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(files_copied), 0), COALESCE(SUM(bytes_copied), 0) FROM ticks`)

	if err := row.Scan(&files, &bytes); err != nil {
		return 0, 0, fmt.Errorf("journal: summing totals: %w", err)
	}

	return files, bytes, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("journal: set pragma %q: %w", p, err)
		}
	}

	return nil
}
