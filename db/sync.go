// ABOUTME: Database operations for the sync_runs history table
// ABOUTME: Records start, finish, counters and errors for every reconciliation run
package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/plansync/models"
	"github.com/oklog/ulid/v2"
)

// ErrRunInProgress is returned by StartSyncRun while another run holds the connection.
var ErrRunInProgress = errors.New("sync already in progress")

// RunLeaseTimeout is how long a 'running' row blocks new runs for its connection.
// Rows older than this belong to a process that died mid-run.
const RunLeaseTimeout = 2 * time.Hour

// StartSyncRun takes the connection's run lease by inserting a 'running' row. The
// insert is conditional, so two processes sharing the database cannot both start.
func StartSyncRun(db *sql.DB, connectionID uuid.UUID) (*models.SyncRun, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-RunLeaseTimeout)

	if _, err := db.Exec(`
		UPDATE sync_runs SET status = 'failed', finished_at = ?, fatal_error = 'run abandoned'
		WHERE connection_id = ? AND status = 'running' AND started_at <= ?
	`, now, connectionID.String(), cutoff); err != nil {
		return nil, fmt.Errorf("failed to expire stale runs: %w", err)
	}

	run := &models.SyncRun{
		ID:           ulid.MustNew(ulid.Now(), rand.Reader).String(),
		ConnectionID: connectionID,
		StartedAt:    now,
		Status:       "running",
	}

	result, err := db.Exec(`
		INSERT INTO sync_runs (id, connection_id, started_at, status)
		SELECT ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM sync_runs WHERE connection_id = ? AND status = 'running'
		)
	`, run.ID, run.ConnectionID.String(), run.StartedAt, run.Status, run.ConnectionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to start sync run: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to start sync run: %w", err)
	}
	if inserted == 0 {
		return nil, ErrRunInProgress
	}

	return run, nil
}

// FinishSyncRun stores the final status, summary and any fatal error.
func FinishSyncRun(db *sql.DB, run *models.SyncRun) error {
	now := time.Now().UTC()
	run.FinishedAt = &now

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	var fatal sql.NullString
	if run.FatalError != "" {
		fatal = sql.NullString{String: run.FatalError, Valid: true}
	}

	_, err = db.Exec(`
		UPDATE sync_runs SET finished_at = ?, status = ?, summary = ?, fatal_error = ?
		WHERE id = ?
	`, run.FinishedAt, run.Status, string(summary), fatal, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	return nil
}

// ListSyncRuns returns the most recent runs for a connection, newest first.
func ListSyncRuns(db *sql.DB, connectionID uuid.UUID, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.Query(`
		SELECT id, connection_id, started_at, finished_at, status, summary, fatal_error
		FROM sync_runs
		WHERE connection_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, connectionID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var summary, fatal sql.NullString

		if err := rows.Scan(&run.ID, &run.ConnectionID, &run.StartedAt, &run.FinishedAt, &run.Status, &summary, &fatal); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}

		if summary.Valid && summary.String != "" {
			if err := json.Unmarshal([]byte(summary.String), &run.Summary); err != nil {
				return nil, fmt.Errorf("failed to decode run summary: %w", err)
			}
		}
		run.FatalError = fatal.String

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}
