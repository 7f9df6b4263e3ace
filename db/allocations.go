// ABOUTME: Allocation database operations
// ABOUTME: Handles CRUD for planned work units including status transition stamps
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/plansync/models"
)

const allocationColumns = `id, project_id, epic_id, stage_id, person_id, role_id, hours, rate, pricing_mode,
	workstream, week_number, planned_start, planned_end, status, description, notes,
	started_date, completed_date, version, created_at, updated_at`

func CreateAllocation(db Execer, a *models.Allocation) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = models.AllocationOpen
	}
	if a.PricingMode == "" {
		a.PricingMode = models.PricingRole
	}
	if a.Version == 0 {
		a.Version = 1
	}

	_, err := db.Exec(`
		INSERT INTO allocations (`+allocationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID.String(), a.ProjectID.String(), nullableUUID(a.EpicID), nullableUUID(a.StageID),
		nullableUUID(a.PersonID), nullableUUID(a.RoleID), a.Hours, a.Rate, a.PricingMode,
		a.Workstream, a.WeekNumber, a.PlannedStart, a.PlannedEnd, a.Status, a.Description, a.Notes,
		a.StartedDate, a.CompletedDate, a.Version, a.CreatedAt, a.UpdatedAt)

	return err
}

func GetAllocation(db *sql.DB, id uuid.UUID) (*models.Allocation, error) {
	rows, err := db.Query(`SELECT `+allocationColumns+` FROM allocations WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	allocations, err := scanAllocations(rows)
	if err != nil {
		return nil, err
	}
	if len(allocations) == 0 {
		return nil, nil
	}
	return &allocations[0], nil
}

func ListAllocationsByProject(db *sql.DB, projectID uuid.UUID) ([]models.Allocation, error) {
	rows, err := db.Query(`
		SELECT `+allocationColumns+` FROM allocations
		WHERE project_id = ?
		ORDER BY planned_start, created_at
	`, projectID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAllocations(rows)
}

// UpdateAllocation writes every mutable field. Callers bump Version themselves.
func UpdateAllocation(db *sql.DB, a *models.Allocation) error {
	a.UpdatedAt = time.Now()

	res, err := db.Exec(`
		UPDATE allocations
		SET epic_id = ?, stage_id = ?, person_id = ?, role_id = ?, hours = ?, rate = ?, pricing_mode = ?,
			workstream = ?, week_number = ?, planned_start = ?, planned_end = ?, status = ?,
			description = ?, notes = ?, started_date = ?, completed_date = ?, version = ?, updated_at = ?
		WHERE id = ?
	`, nullableUUID(a.EpicID), nullableUUID(a.StageID), nullableUUID(a.PersonID), nullableUUID(a.RoleID),
		a.Hours, a.Rate, a.PricingMode, a.Workstream, a.WeekNumber, a.PlannedStart, a.PlannedEnd, a.Status,
		a.Description, a.Notes, a.StartedDate, a.CompletedDate, a.Version, a.UpdatedAt, a.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update allocation: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update allocation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("allocation %s not found", a.ID)
	}
	return nil
}

// BumpAllocationVersion increments the local version counter after an outbound push.
func BumpAllocationVersion(db *sql.DB, id uuid.UUID) error {
	_, err := db.Exec(`UPDATE allocations SET version = version + 1 WHERE id = ?`, id.String())
	return err
}

func scanAllocations(rows *sql.Rows) ([]models.Allocation, error) {
	var allocations []models.Allocation
	for rows.Next() {
		var a models.Allocation
		var epicID, stageID, personID, roleID sql.NullString
		var workstream, description, notes sql.NullString

		if err := rows.Scan(
			&a.ID, &a.ProjectID, &epicID, &stageID, &personID, &roleID, &a.Hours, &a.Rate, &a.PricingMode,
			&workstream, &a.WeekNumber, &a.PlannedStart, &a.PlannedEnd, &a.Status, &description, &notes,
			&a.StartedDate, &a.CompletedDate, &a.Version, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}

		a.EpicID = parseNullableUUID(epicID)
		a.StageID = parseNullableUUID(stageID)
		a.PersonID = parseNullableUUID(personID)
		a.RoleID = parseNullableUUID(roleID)
		a.Workstream = workstream.String
		a.Description = description.String
		a.Notes = notes.String

		allocations = append(allocations, a)
	}

	return allocations, rows.Err()
}
