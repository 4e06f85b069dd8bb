package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/mattn/go-sqlite3"
)

// DBQuerier defines the interface for database query operations
// Both *sql.DB and *sql.Tx implement this interface
type DBQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository provides catalog operations
type Repository struct {
	db DBQuerier
}

// NewRepository creates a new repository instance
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithTransaction executes a function within a database transaction
func (r *Repository) WithTransaction(ctx context.Context, fn func(*Repository) error) error {
	sqlDB, ok := r.db.(*sql.DB)
	if !ok {
		return fmt.Errorf("repository not connected to sql.DB")
	}

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txRepo := &Repository{db: tx}

	err = fn(txRepo)
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("failed to rollback transaction (original error: %w): %w", err, rollbackErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// isBusy reports whether err is SQLite lock contention worth retrying.
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// execWithRetry runs a write statement, retrying while the database is busy.
func (r *Repository) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retry.Do(
		func() error {
			_, err := r.db.ExecContext(ctx, query, args...)
			return err
		},
		retry.Attempts(5),
		retry.Delay(20*time.Millisecond),
		retry.MaxDelay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isBusy),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

// atomically runs fn in a transaction, or directly when r is already bound to
// one. Busy transactions are retried as a whole.
func (r *Repository) atomically(ctx context.Context, fn func(*Repository) error) error {
	if _, inTx := r.db.(*sql.Tx); inTx {
		return fn(r)
	}
	return retry.Do(
		func() error { return r.WithTransaction(ctx, fn) },
		retry.Attempts(5),
		retry.Delay(20*time.Millisecond),
		retry.MaxDelay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isBusy),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

// Title operations

// UpsertTitle inserts or replaces the catalog row of a ROM file and clears
// any failure recorded for it.
func (r *Repository) UpsertTitle(ctx context.Context, t *Title) error {
	query := `
		INSERT INTO titles (rom_path, title_id, format, name, publisher, version, icon, prompts_for_user, file_size, scan_id, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rom_path) DO UPDATE SET
		title_id = excluded.title_id,
		format = excluded.format,
		name = excluded.name,
		publisher = excluded.publisher,
		version = excluded.version,
		icon = excluded.icon,
		prompts_for_user = excluded.prompts_for_user,
		file_size = excluded.file_size,
		scan_id = excluded.scan_id,
		scanned_at = excluded.scanned_at
	`

	scannedAt := t.ScannedAt
	if scannedAt.IsZero() {
		scannedAt = time.Now().UTC()
	}

	return r.atomically(ctx, func(tx *Repository) error {
		if _, err := tx.db.ExecContext(ctx, query,
			t.RomPath, t.TitleID, t.Format, t.Name, t.Publisher, t.Version, t.Icon,
			t.PromptsForUser, t.FileSize, t.ScanID, scannedAt); err != nil {
			return fmt.Errorf("failed to upsert title %s: %w", t.RomPath, err)
		}
		if _, err := tx.db.ExecContext(ctx, `DELETE FROM scan_failures WHERE rom_path = ?`, t.RomPath); err != nil {
			return fmt.Errorf("failed to clear failure for %s: %w", t.RomPath, err)
		}
		return nil
	})
}

const titleColumns = `rom_path, title_id, format, name, publisher, version, icon, prompts_for_user, file_size, scan_id, scanned_at`

func scanTitle(row interface{ Scan(...any) error }, withIcon bool) (*Title, error) {
	var t Title
	var icon []byte
	if err := row.Scan(&t.RomPath, &t.TitleID, &t.Format, &t.Name, &t.Publisher, &t.Version, &icon,
		&t.PromptsForUser, &t.FileSize, &t.ScanID, &t.ScannedAt); err != nil {
		return nil, err
	}
	t.HasIcon = len(icon) > 0
	if withIcon {
		t.Icon = icon
	}
	return &t, nil
}

// GetTitle returns the first catalogued ROM for a title id, or nil.
func (r *Repository) GetTitle(ctx context.Context, titleID string) (*Title, error) {
	query := `SELECT ` + titleColumns + ` FROM titles WHERE title_id = ? ORDER BY rom_path LIMIT 1`

	t, err := scanTitle(r.db.QueryRowContext(ctx, query, titleID), true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get title: %w", err)
	}
	return t, nil
}

// GetTitleByPath returns the catalog row of a ROM file, or nil.
func (r *Repository) GetTitleByPath(ctx context.Context, romPath string) (*Title, error) {
	query := `SELECT ` + titleColumns + ` FROM titles WHERE rom_path = ?`

	t, err := scanTitle(r.db.QueryRowContext(ctx, query, romPath), true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get title by path: %w", err)
	}
	return t, nil
}

// ListTitles returns every catalogued ROM ordered by name, without icons.
func (r *Repository) ListTitles(ctx context.Context) ([]*Title, error) {
	return r.listTitles(ctx, false)
}

// ListTitlesWithIcons is ListTitles including the icon bytes.
func (r *Repository) ListTitlesWithIcons(ctx context.Context) ([]*Title, error) {
	return r.listTitles(ctx, true)
}

func (r *Repository) listTitles(ctx context.Context, withIcon bool) ([]*Title, error) {
	query := `SELECT ` + titleColumns + ` FROM titles ORDER BY name COLLATE NOCASE, rom_path`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list titles: %w", err)
	}
	defer rows.Close()

	var titles []*Title
	for rows.Next() {
		t, err := scanTitle(rows, withIcon)
		if err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// DeleteTitlesNotSeen removes rows of ROMs that were not part of scanID,
// i.e. files that disappeared from the library.
func (r *Repository) DeleteTitlesNotSeen(ctx context.Context, scanID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM titles WHERE scan_id != ?`, scanID)
	if err != nil {
		return 0, fmt.Errorf("failed to prune titles: %w", err)
	}
	n, _ := result.RowsAffected()

	if err := r.execWithRetry(ctx, `DELETE FROM scan_failures WHERE scan_id != ?`, scanID); err != nil {
		return n, fmt.Errorf("failed to prune failures: %w", err)
	}
	return n, nil
}

// Failure operations

// RecordFailure stores why a ROM could not be parsed, replacing any
// previous row for it.
func (r *Repository) RecordFailure(ctx context.Context, f *ScanFailure) error {
	query := `
		INSERT INTO scan_failures (rom_path, code, message, scan_id, failed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(rom_path) DO UPDATE SET
		code = excluded.code,
		message = excluded.message,
		scan_id = excluded.scan_id,
		failed_at = excluded.failed_at
	`

	failedAt := f.FailedAt
	if failedAt.IsZero() {
		failedAt = time.Now().UTC()
	}

	return r.atomically(ctx, func(tx *Repository) error {
		if _, err := tx.db.ExecContext(ctx, query, f.RomPath, f.Code, f.Message, f.ScanID, failedAt); err != nil {
			return fmt.Errorf("failed to record failure for %s: %w", f.RomPath, err)
		}
		if _, err := tx.db.ExecContext(ctx, `DELETE FROM titles WHERE rom_path = ?`, f.RomPath); err != nil {
			return fmt.Errorf("failed to drop stale title for %s: %w", f.RomPath, err)
		}
		return nil
	})
}

// ListFailures returns every recorded failure ordered by path.
func (r *Repository) ListFailures(ctx context.Context) ([]*ScanFailure, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT rom_path, code, message, scan_id, failed_at FROM scan_failures ORDER BY rom_path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer rows.Close()

	var failures []*ScanFailure
	for rows.Next() {
		var f ScanFailure
		if err := rows.Scan(&f.RomPath, &f.Code, &f.Message, &f.ScanID, &f.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failures = append(failures, &f)
	}
	return failures, rows.Err()
}

// Scan run operations

// StartScanRun records the beginning of a scan.
func (r *Repository) StartScanRun(ctx context.Context, run *ScanRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if err := r.execWithRetry(ctx,
		`INSERT INTO scan_runs (id, roms_dir, started_at) VALUES (?, ?, ?)`,
		run.ID, run.RomsDir, run.StartedAt); err != nil {
		return fmt.Errorf("failed to start scan run: %w", err)
	}
	return nil
}

// FinishScanRun stores the counters of a completed scan.
func (r *Repository) FinishScanRun(ctx context.Context, run *ScanRun) error {
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	if err := r.execWithRetry(ctx,
		`UPDATE scan_runs SET finished_at = ?, scanned = ?, failed = ? WHERE id = ?`,
		finished, run.Scanned, run.Failed, run.ID); err != nil {
		return fmt.Errorf("failed to finish scan run: %w", err)
	}
	return nil
}

// LatestScanRun returns the most recently started scan, or nil.
func (r *Repository) LatestScanRun(ctx context.Context) (*ScanRun, error) {
	var run ScanRun
	var finished sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, roms_dir, started_at, finished_at, scanned, failed FROM scan_runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&run.ID, &run.RomsDir, &run.StartedAt, &finished, &run.Scanned, &run.Failed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest scan run: %w", err)
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}
