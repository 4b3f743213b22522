/*
Package sqlite persists saved Rule 37 calculation runs.

PURPOSE:
  A calculation run is the stored result of one upload: which files,
  which as-on date, the computed totals, and the full per-ledger result
  set (serialized JSON) for later viewing and export. Runs are tenant
  scoped and expire after a retention window.

KEY TABLE:
  calculation_runs: one row per saved run. results_json holds the full
  per-ledger breakdown; money totals are stored as TEXT produced by
  decimal.String to avoid float drift in and out of the database.

INDEXES:
  - idx_runs_tenant_created: tenant-scoped listing, newest first (hot path)
  - idx_runs_expires: retention purge lookups

WAL MODE:
  SQLite is opened with WAL for better concurrency; a mutex serializes
  writes on top of that. With PostgreSQL the same methods would lean on
  database-level concurrency control instead.

USAGE:
  store, err := sqlite.New("./data/itc.db")
  if err != nil { log.Fatal(err) }
  defer store.Close()

SEE ALSO:
  - api/upload.go: Creates runs
  - api/scheduler.go: Purges expired runs
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/gstledger/itc-engine/rule37"
)

// Run is a persisted calculation run.
type Run struct {
	ID               string
	TenantID         string
	Filename         string
	AsOnDate         rule37.Date
	TotalInterest    decimal.Decimal
	TotalItcReversal decimal.Decimal
	ResultsJSON      string
	CreatedBy        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Store implements calculation run persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a store backed by the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS calculation_runs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		as_on_date TEXT NOT NULL,
		total_interest TEXT NOT NULL,
		total_itc_reversal TEXT NOT NULL,
		results_json TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	-- Tenant-scoped listing, newest first (hot path)
	CREATE INDEX IF NOT EXISTS idx_runs_tenant_created
		ON calculation_runs(tenant_id, created_at DESC);

	-- Retention purge
	CREATE INDEX IF NOT EXISTS idx_runs_expires
		ON calculation_runs(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUN PERSISTENCE
// =============================================================================

// SaveRun inserts a new calculation run.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO calculation_runs
			(id, tenant_id, filename, as_on_date, total_interest, total_itc_reversal,
			 results_json, created_by, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.TenantID,
		run.Filename,
		run.AsOnDate.String(),
		run.TotalInterest.String(),
		run.TotalItcReversal.String(),
		run.ResultsJSON,
		run.CreatedBy,
		run.CreatedAt.UTC().Format(time.RFC3339),
		run.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun returns one run scoped to a tenant, or nil if absent.
func (s *Store) GetRun(ctx context.Context, id, tenantID string) (*Run, error) {
	query := selectRunColumns + ` WHERE id = ? AND tenant_id = ?`

	row := s.db.QueryRowContext(ctx, query, id, tenantID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns a tenant's runs, newest first.
func (s *Store) ListRuns(ctx context.Context, tenantID string, limit, offset int) ([]Run, error) {
	query := selectRunColumns + `
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// DeleteRun removes one run scoped to a tenant. Returns whether a row
// was actually deleted.
func (s *Store) DeleteRun(ctx context.Context, id, tenantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM calculation_runs WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountRuns returns how many runs a tenant has saved. Used to enforce
// the per-tenant saved calculation cap.
func (s *Store) CountRuns(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM calculation_runs WHERE tenant_id = ?`, tenantID).Scan(&count)
	return count, err
}

// PurgeExpired deletes runs whose expiry is before the cutoff and
// returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM calculation_runs WHERE expires_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// SCANNING
// =============================================================================

const selectRunColumns = `
	SELECT id, tenant_id, filename, as_on_date, total_interest, total_itc_reversal,
	       results_json, created_by, created_at, expires_at
	FROM calculation_runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var asOnDate, totalInterest, totalItcReversal, createdAt, expiresAt string

	if err := row.Scan(
		&run.ID,
		&run.TenantID,
		&run.Filename,
		&asOnDate,
		&totalInterest,
		&totalItcReversal,
		&run.ResultsJSON,
		&run.CreatedBy,
		&createdAt,
		&expiresAt,
	); err != nil {
		return nil, err
	}

	var err error
	if run.AsOnDate, err = rule37.ParseDate(asOnDate); err != nil {
		return nil, fmt.Errorf("corrupt as_on_date %q: %w", asOnDate, err)
	}
	if run.TotalInterest, err = decimal.NewFromString(totalInterest); err != nil {
		return nil, fmt.Errorf("corrupt total_interest %q: %w", totalInterest, err)
	}
	if run.TotalItcReversal, err = decimal.NewFromString(totalItcReversal); err != nil {
		return nil, fmt.Errorf("corrupt total_itc_reversal %q: %w", totalItcReversal, err)
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at %q: %w", createdAt, err)
	}
	if run.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return nil, fmt.Errorf("corrupt expires_at %q: %w", expiresAt, err)
	}
	return &run, nil
}
