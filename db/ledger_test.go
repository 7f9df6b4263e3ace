// ABOUTME: Tests for sync ledger operations and their uniqueness invariants
// ABOUTME: Covers partial updates, lookups, tombstones and atomic import writes
package db

import (
	"testing"
	"time"

	"github.com/harperreed/plansync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndFindLedgerEntry(t *testing.T) {
	db := setupTestDB(t)
	p := createTestProject(t, db, "Alpha", "plan-a")

	a := &models.Allocation{ProjectID: p.project.ID, Hours: 8}
	require.NoError(t, CreateAllocation(db, a))

	now := time.Now()
	entry := &models.LedgerEntry{
		ConnectionID:   p.conn.ID,
		AllocationID:   &a.ID,
		ExternalTaskID: "task-1",
		BucketID:       "bucket-1",
		BucketName:     "Design",
		LastEtag:       "etag-1",
		LastSyncedAt:   &now,
	}
	require.NoError(t, CreateLedgerEntry(db, entry))
	assert.Equal(t, models.LedgerSynced, entry.Status, "status defaults to synced")

	byTask, err := FindLedgerByExternalTaskID(db, p.conn.ID, "task-1")
	require.NoError(t, err)
	require.NotNil(t, byTask)
	assert.Equal(t, entry.ID, byTask.ID)
	assert.Equal(t, "Design", byTask.BucketName)
	require.NotNil(t, byTask.LastSyncedAt)

	byAlloc, err := FindLedgerByAllocationID(db, p.conn.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, byAlloc)
	assert.Equal(t, "task-1", byAlloc.ExternalTaskID)

	missing, err := FindLedgerByExternalTaskID(db, p.conn.ID, "task-404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateLedgerEntryIsPartial(t *testing.T) {
	db := setupTestDB(t)
	p := createTestProject(t, db, "Alpha", "plan-a")

	entry := &models.LedgerEntry{ConnectionID: p.conn.ID, ExternalTaskID: "task-1", BucketName: "Design", LastEtag: "e1"}
	require.NoError(t, CreateLedgerEntry(db, entry))

	status := models.LedgerDeletedRemote
	require.NoError(t, UpdateLedgerEntry(db, entry.ID, LedgerUpdate{Status: &status}))

	got, err := FindLedgerByExternalTaskID(db, p.conn.ID, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.LedgerDeletedRemote, got.Status)
	assert.Equal(t, "Design", got.BucketName, "unset fields are untouched")
	assert.Equal(t, "e1", got.LastEtag)
}

func TestLedgerUniqueness(t *testing.T) {
	db := setupTestDB(t)
	p := createTestProject(t, db, "Alpha", "plan-a")
	q := createTestProject(t, db, "Beta", "plan-b")

	a := &models.Allocation{ProjectID: p.project.ID}
	require.NoError(t, CreateAllocation(db, a))

	first := &models.LedgerEntry{ConnectionID: p.conn.ID, AllocationID: &a.ID, ExternalTaskID: "task-1"}
	require.NoError(t, CreateLedgerEntry(db, first))

	// Same allocation, same connection
	err := CreateLedgerEntry(db, &models.LedgerEntry{ConnectionID: p.conn.ID, AllocationID: &a.ID, ExternalTaskID: "task-2"})
	assert.Error(t, err)

	// Same live task under another connection
	err = CreateLedgerEntry(db, &models.LedgerEntry{ConnectionID: q.conn.ID, ExternalTaskID: "task-1"})
	assert.Error(t, err)

	// Once tombstoned, another connection may claim the task id
	status := models.LedgerDeletedRemote
	require.NoError(t, UpdateLedgerEntry(db, first.ID, LedgerUpdate{Status: &status}))
	require.NoError(t, CreateLedgerEntry(db, &models.LedgerEntry{ConnectionID: q.conn.ID, ExternalTaskID: "task-1"}))

	// Several failed imports without allocations coexist
	require.NoError(t, CreateLedgerEntry(db, &models.LedgerEntry{ConnectionID: p.conn.ID, ExternalTaskID: "task-3", Status: models.LedgerImportFailed}))
	require.NoError(t, CreateLedgerEntry(db, &models.LedgerEntry{ConnectionID: p.conn.ID, ExternalTaskID: "task-4", Status: models.LedgerImportFailed}))

	entries, err := FindLedgerByConnection(db, p.conn.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCreateAllocationWithLedgerIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	p := createTestProject(t, db, "Alpha", "plan-a")

	a := &models.Allocation{ProjectID: p.project.ID, Hours: 8, Status: models.AllocationInProgress}
	e := &models.LedgerEntry{ConnectionID: p.conn.ID, ExternalTaskID: "task-1"}
	require.NoError(t, CreateAllocationWithLedger(db, a, e, nil))
	require.NotNil(t, e.AllocationID)
	assert.Equal(t, a.ID, *e.AllocationID)

	// The task is already ledgered: the allocation insert must roll back too.
	dup := &models.Allocation{ProjectID: p.project.ID, Hours: 8}
	err := CreateAllocationWithLedger(db, dup, &models.LedgerEntry{ConnectionID: p.conn.ID, ExternalTaskID: "task-1"}, nil)
	require.Error(t, err)

	allocations, err := ListAllocationsByProject(db, p.project.ID)
	require.NoError(t, err)
	assert.Len(t, allocations, 1)
}

func TestCreateAllocationWithLedgerStoresPlaceholder(t *testing.T) {
	db := setupTestDB(t)
	p := createTestProject(t, db, "Alpha", "plan-a")
	require.NoError(t, CreateLedgerEntry(db, &models.LedgerEntry{ConnectionID: p.conn.ID, ExternalTaskID: "task-1"}))

	// The ledger insert fails, so neither the person nor the mapping survives.
	failed := &Placeholder{
		Person:  &models.Person{Name: "Dana", Email: "dana@example.com", IsPlaceholder: true},
		Mapping: &models.IdentityMapping{ExternalID: "user-9", Email: "dana@example.com", DiscoveryMethod: models.DiscoveryAutoCreated},
	}
	err := CreateAllocationWithLedger(db, &models.Allocation{ProjectID: p.project.ID}, &models.LedgerEntry{ConnectionID: p.conn.ID, ExternalTaskID: "task-1"}, failed)
	require.Error(t, err)

	person, err := FindPersonByEmail(db, "dana@example.com")
	require.NoError(t, err)
	assert.Nil(t, person)
	m, err := GetIdentityMappingByExternalID(db, "user-9")
	require.NoError(t, err)
	assert.Nil(t, m)

	placeholder := &Placeholder{
		Person:  &models.Person{Name: "Dana", Email: "dana@example.com", IsPlaceholder: true},
		Mapping: &models.IdentityMapping{ExternalID: "user-9", Email: "dana@example.com", DiscoveryMethod: models.DiscoveryAutoCreated},
	}
	a := &models.Allocation{ProjectID: p.project.ID}
	require.NoError(t, CreateAllocationWithLedger(db, a, &models.LedgerEntry{ConnectionID: p.conn.ID, ExternalTaskID: "task-2"}, placeholder))
	require.NotNil(t, a.PersonID)
	assert.Equal(t, placeholder.Person.ID, *a.PersonID)

	m, err = GetIdentityMappingByExternalID(db, "user-9")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, placeholder.Person.ID, m.PersonID)
}

func TestDeletingAllocationUnlinksLedger(t *testing.T) {
	db := setupTestDB(t)
	p := createTestProject(t, db, "Alpha", "plan-a")

	a := &models.Allocation{ProjectID: p.project.ID}
	require.NoError(t, CreateAllocationWithLedger(db, a, &models.LedgerEntry{ConnectionID: p.conn.ID, ExternalTaskID: "task-1"}, nil))

	_, err := db.Exec(`DELETE FROM allocations WHERE id = ?`, a.ID.String())
	require.NoError(t, err)

	entry, err := FindLedgerByExternalTaskID(db, p.conn.ID, "task-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Nil(t, entry.AllocationID)
}
