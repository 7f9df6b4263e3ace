// ABOUTME: Sync state ledger database operations
// ABOUTME: Durable allocation to external-task correspondence with status and etags
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/plansync/models"
)

const ledgerColumns = `id, connection_id, allocation_id, external_task_id, bucket_id, bucket_name, status,
	last_etag, last_synced_at, error_text, created_at, updated_at`

// LedgerUpdate carries the fields to change; nil fields are left as they are.
type LedgerUpdate struct {
	AllocationID *uuid.UUID
	BucketID     *string
	BucketName   *string
	Status       *string
	LastEtag     *string
	LastSyncedAt *time.Time
	ErrorText    *string
}

func CreateLedgerEntry(db Execer, e *models.LedgerEntry) error {
	e.ID = uuid.New()
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = models.LedgerSynced
	}

	_, err := db.Exec(`
		INSERT INTO sync_ledger (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID.String(), e.ConnectionID.String(), nullableUUID(e.AllocationID), e.ExternalTaskID, e.BucketID,
		e.BucketName, e.Status, e.LastEtag, e.LastSyncedAt, e.ErrorText, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	return nil
}

func UpdateLedgerEntry(db *sql.DB, id uuid.UUID, u LedgerUpdate) error {
	set := "updated_at = ?"
	args := []any{time.Now()}

	if u.AllocationID != nil {
		set += ", allocation_id = ?"
		args = append(args, u.AllocationID.String())
	}
	if u.BucketID != nil {
		set += ", bucket_id = ?"
		args = append(args, *u.BucketID)
	}
	if u.BucketName != nil {
		set += ", bucket_name = ?"
		args = append(args, *u.BucketName)
	}
	if u.Status != nil {
		set += ", status = ?"
		args = append(args, *u.Status)
	}
	if u.LastEtag != nil {
		set += ", last_etag = ?"
		args = append(args, *u.LastEtag)
	}
	if u.LastSyncedAt != nil {
		set += ", last_synced_at = ?"
		args = append(args, *u.LastSyncedAt)
	}
	if u.ErrorText != nil {
		set += ", error_text = ?"
		args = append(args, *u.ErrorText)
	}
	args = append(args, id.String())

	if _, err := db.Exec(`UPDATE sync_ledger SET `+set+` WHERE id = ?`, args...); err != nil {
		return fmt.Errorf("failed to update ledger entry: %w", err)
	}

	return nil
}

func FindLedgerByConnection(db *sql.DB, connectionID uuid.UUID) ([]models.LedgerEntry, error) {
	rows, err := db.Query(`
		SELECT `+ledgerColumns+` FROM sync_ledger
		WHERE connection_id = ?
		ORDER BY created_at
	`, connectionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	return scanLedger(rows)
}

// FindLedgerByExternalTaskID returns the connection's entry for a task in any status,
// including tombstones.
func FindLedgerByExternalTaskID(db *sql.DB, connectionID uuid.UUID, externalTaskID string) (*models.LedgerEntry, error) {
	return findOneLedger(db, `connection_id = ? AND external_task_id = ?`, connectionID.String(), externalTaskID)
}

func FindLedgerByAllocationID(db *sql.DB, connectionID, allocationID uuid.UUID) (*models.LedgerEntry, error) {
	return findOneLedger(db, `connection_id = ? AND allocation_id = ?`, connectionID.String(), allocationID.String())
}

func findOneLedger(db *sql.DB, where string, args ...any) (*models.LedgerEntry, error) {
	rows, err := db.Query(`SELECT `+ledgerColumns+` FROM sync_ledger WHERE `+where+` LIMIT 1`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	entries, err := scanLedger(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Placeholder is a person created on the fly for an unknown assignee, with the
// mapping that ties it to the directory identity.
type Placeholder struct {
	Person  *models.Person
	Mapping *models.IdentityMapping
}

// CreateAllocationWithLedger inserts an imported allocation and its ledger entry atomically.
// A non-nil placeholder is stored in the same transaction and becomes the allocation's person.
func CreateAllocationWithLedger(db *sql.DB, a *models.Allocation, e *models.LedgerEntry, placeholder *Placeholder) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	if placeholder != nil {
		if err := CreatePerson(tx, placeholder.Person); err != nil {
			return fmt.Errorf("failed to create person: %w", err)
		}
		placeholder.Mapping.PersonID = placeholder.Person.ID
		if err := SaveIdentityMapping(tx, placeholder.Mapping); err != nil {
			return err
		}
		a.PersonID = &placeholder.Person.ID
	}

	if err := CreateAllocation(tx, a); err != nil {
		return fmt.Errorf("failed to create allocation: %w", err)
	}

	e.AllocationID = &a.ID
	if err := CreateLedgerEntry(tx, e); err != nil {
		return err
	}

	return tx.Commit()
}

func scanLedger(rows *sql.Rows) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		var allocationID, bucketID, bucketName, etag, errText sql.NullString

		if err := rows.Scan(&e.ID, &e.ConnectionID, &allocationID, &e.ExternalTaskID, &bucketID, &bucketName,
			&e.Status, &etag, &e.LastSyncedAt, &errText, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		e.AllocationID = parseNullableUUID(allocationID)
		e.BucketID = bucketID.String
		e.BucketName = bucketName.String
		e.LastEtag = etag.String
		e.ErrorText = errText.String
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger: %w", err)
	}

	return entries, nil
}
