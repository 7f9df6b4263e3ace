// ABOUTME: Connection database operations
// ABOUTME: Links one project to one external plan and records the outcome of each sync run
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/plansync/models"
)

const connectionColumns = `id, project_id, external_plan_id, external_group_id, sync_enabled, sync_direction,
	auto_add_members, last_sync_at, last_sync_status, last_sync_error, created_at, updated_at`

func CreateConnection(db *sql.DB, c *models.Connection) error {
	c.ID = uuid.New()
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.SyncDirection == "" {
		c.SyncDirection = models.DirectionBidirectional
	}

	_, err := db.Exec(`
		INSERT INTO connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID.String(), c.ProjectID.String(), c.ExternalPlanID, c.ExternalGroupID, c.SyncEnabled, c.SyncDirection,
		c.AutoAddMembers, c.LastSyncAt, c.LastSyncStatus, c.LastSyncError, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}

	return nil
}

func GetConnection(db *sql.DB, id uuid.UUID) (*models.Connection, error) {
	rows, err := db.Query(`SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer rows.Close()

	connections, err := scanConnections(rows)
	if err != nil {
		return nil, err
	}
	if len(connections) == 0 {
		return nil, nil
	}
	return &connections[0], nil
}

func ListConnections(db *sql.DB) ([]models.Connection, error) {
	rows, err := db.Query(`SELECT ` + connectionColumns + ` FROM connections ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	return scanConnections(rows)
}

// UpdateConnectionSyncResult records the outcome of a run on the connection row.
func UpdateConnectionSyncResult(db *sql.DB, id uuid.UUID, status, errorText string) error {
	now := time.Now()
	var errVal sql.NullString
	if errorText != "" {
		errVal = sql.NullString{String: errorText, Valid: true}
	}

	_, err := db.Exec(`
		UPDATE connections
		SET last_sync_at = ?, last_sync_status = ?, last_sync_error = ?, updated_at = ?
		WHERE id = ?
	`, now, status, errVal, now, id.String())
	if err != nil {
		return fmt.Errorf("failed to update connection sync result: %w", err)
	}

	return nil
}

func SetConnectionEnabled(db *sql.DB, id uuid.UUID, enabled bool) error {
	_, err := db.Exec(`
		UPDATE connections SET sync_enabled = ?, updated_at = ? WHERE id = ?
	`, enabled, time.Now(), id.String())
	return err
}

// DeleteConnection removes a connection together with its ledger and run history.
func DeleteConnection(db *sql.DB, id uuid.UUID) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	if _, err := tx.Exec(`DELETE FROM sync_ledger WHERE connection_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete ledger entries: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM sync_runs WHERE connection_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete sync runs: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM connections WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	return tx.Commit()
}

func scanConnections(rows *sql.Rows) ([]models.Connection, error) {
	var connections []models.Connection
	for rows.Next() {
		var c models.Connection
		var groupID, status, errText sql.NullString

		if err := rows.Scan(&c.ID, &c.ProjectID, &c.ExternalPlanID, &groupID, &c.SyncEnabled, &c.SyncDirection,
			&c.AutoAddMembers, &c.LastSyncAt, &status, &errText, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		c.ExternalGroupID = groupID.String
		c.LastSyncStatus = status.String
		c.LastSyncError = errText.String
		connections = append(connections, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return connections, nil
}
