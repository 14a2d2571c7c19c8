package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Run statuses recorded in the audit log
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// leaseName is the advisory lock guarding the watermark read-advance
// sequence; a second concurrent run fails fast instead of double-extracting
// the same window.
const leaseName = "sales_dw_etl_run"

// watermarkSentinel is returned when no successful run exists: far enough
// in the past that the next extraction behaves as a full load.
var watermarkSentinel = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// WatermarkManager reads and advances the CDC cursor. The append-only
// etl_run_log table in the warehouse is the cursor store: the watermark is
// the latest run_timestamp with SUCCESS status.
type WatermarkManager struct {
	db *sql.DB

	// leaseConn pins the advisory lock to one connection; GET_LOCK and
	// RELEASE_LOCK are meaningless across different pooled connections.
	leaseConn *sql.Conn
}

// NewWatermarkManager creates a new watermark manager
func NewWatermarkManager(db *sql.DB) *WatermarkManager {
	return &WatermarkManager{db: db}
}

// Init creates the audit log table if it doesn't exist
func (wm *WatermarkManager) Init(ctx context.Context) error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS etl_run_log (
			run_id CHAR(36) NOT NULL PRIMARY KEY,
			run_timestamp DATETIME NOT NULL,
			status VARCHAR(16) NOT NULL,
			records_extracted INT NOT NULL,
			created_at DATETIME NOT NULL,
			KEY idx_status_timestamp (status, run_timestamp)
		)
	`
	if _, err := wm.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create etl_run_log: %w", err)
	}
	return nil
}

// Watermark returns the timestamp of the last successful run. An
// unreachable log store or an empty log both yield the far-past sentinel:
// the pipeline treats cursor-read failure as a first run rather than
// aborting, trading precision for availability.
func (wm *WatermarkManager) Watermark(ctx context.Context) time.Time {
	var last sql.NullTime

	query := `
		SELECT MAX(run_timestamp)
		FROM etl_run_log
		WHERE status = 'SUCCESS'
	`
	err := wm.db.QueryRowContext(ctx, query).Scan(&last)
	if err != nil {
		log.Printf("⚠️  Failed to read watermark, assuming first run: %v", err)
		return watermarkSentinel
	}
	if !last.Valid {
		log.Println("📍 No prior successful run, performing full load")
		return watermarkSentinel
	}

	return last.Time
}

// RecordRun appends one audit row. Rows are never updated; a failed run
// leaves the effective watermark untouched because only SUCCESS rows count.
func (wm *WatermarkManager) RecordRun(ctx context.Context, status string, records int) error {
	query := `
		INSERT INTO etl_run_log (run_id, run_timestamp, status, records_extracted, created_at)
		VALUES (?, NOW(), ?, ?, NOW())
	`
	if _, err := wm.db.ExecContext(ctx, query, uuid.NewString(), status, records); err != nil {
		return fmt.Errorf("failed to record %s run: %w", status, err)
	}
	return nil
}

// AcquireLease takes the run lease without waiting. Returns an error when
// another run already holds it.
func (wm *WatermarkManager) AcquireLease(ctx context.Context) error {
	conn, err := wm.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to open lease connection: %w", err)
	}

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 0)`, leaseName).Scan(&got); err != nil {
		conn.Close()
		return fmt.Errorf("failed to acquire run lease: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		conn.Close()
		return fmt.Errorf("another pipeline run holds the lease %q", leaseName)
	}

	wm.leaseConn = conn
	return nil
}

// ReleaseLease releases the run lease and its pinned connection
func (wm *WatermarkManager) ReleaseLease(ctx context.Context) {
	if wm.leaseConn == nil {
		return
	}
	if _, err := wm.leaseConn.ExecContext(ctx, `SELECT RELEASE_LOCK(?)`, leaseName); err != nil {
		log.Printf("⚠️  Failed to release run lease: %v", err)
	}
	wm.leaseConn.Close()
	wm.leaseConn = nil
}
