// ABOUTME: Tests for allocation, project, stage and people operations
// ABOUTME: Covers defaults, nullable fields, case-insensitive lookups and version bumps
package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/plansync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAllocationDefaults(t *testing.T) {
	db := setupTestDB(t)
	p := createTestProject(t, db, "Alpha", "plan-a")

	a := &models.Allocation{ProjectID: p.project.ID, StageID: &p.stage.ID, Hours: 10}
	require.NoError(t, CreateAllocation(db, a))

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, models.AllocationOpen, a.Status)
	assert.Equal(t, models.PricingRole, a.PricingMode)
	assert.Equal(t, 1, a.Version)

	got, err := GetAllocation(db, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10.0, got.Hours)
	assert.Equal(t, p.stage.ID, *got.StageID)
	assert.Nil(t, got.PersonID)
	assert.Nil(t, got.PlannedStart)
}

func TestUpdateAllocation(t *testing.T) {
	db := setupTestDB(t)
	p := createTestProject(t, db, "Alpha", "plan-a")

	a := &models.Allocation{ProjectID: p.project.ID, Hours: 4}
	require.NoError(t, CreateAllocation(db, a))

	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	a.Status = models.AllocationInProgress
	a.PlannedStart = &start
	a.StartedDate = &start
	require.NoError(t, UpdateAllocation(db, a))

	got, err := GetAllocation(db, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AllocationInProgress, got.Status)
	require.NotNil(t, got.PlannedStart)
	assert.True(t, got.PlannedStart.Equal(start))

	got.PlannedStart = nil
	require.NoError(t, UpdateAllocation(db, got))
	cleared, err := GetAllocation(db, a.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.PlannedStart)

	require.NoError(t, BumpAllocationVersion(db, a.ID))
	bumped, err := GetAllocation(db, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, bumped.Version)

	missing := &models.Allocation{ID: uuid.New(), ProjectID: p.project.ID, Status: models.AllocationOpen, PricingMode: models.PricingRole}
	assert.Error(t, UpdateAllocation(db, missing))
}

func TestFindStageByName(t *testing.T) {
	db := setupTestDB(t)
	p := createTestProject(t, db, "Alpha", "plan-a")
	other := createTestProject(t, db, "Beta", "plan-b")

	got, err := FindStageByName(db, p.project.ID, "  DESIGN ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.stage.ID, got.ID)

	got, err = FindStageByName(db, other.project.ID, "Build")
	require.NoError(t, err)
	assert.Nil(t, got)

	stages, err := ListStagesByProject(db, p.project.ID)
	require.NoError(t, err)
	assert.Len(t, stages, 1)
}

func TestGetOrCreateDefaultEpic(t *testing.T) {
	db := setupTestDB(t)
	p := createTestProject(t, db, "Alpha", "plan-a")

	first, err := GetOrCreateDefaultEpic(db, p.project.ID)
	require.NoError(t, err)
	assert.True(t, first.IsDefault)
	assert.Equal(t, DefaultEpicName, first.Name)

	second, err := GetOrCreateDefaultEpic(db, p.project.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindProjectByName(t *testing.T) {
	db := setupTestDB(t)
	p := createTestProject(t, db, "Alpha Rollout", "plan-a")
	createTestProject(t, db, "Beta", "plan-b")

	found, err := FindProjectByName(db, "  alpha rollout ")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, p.project.ID, found.ID)

	missing, err := FindProjectByName(db, "Gamma")
	require.NoError(t, err)
	assert.Nil(t, missing)

	projects, err := ListProjects(db)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "Alpha Rollout", projects[0].Name)
}

func TestPeopleAndRoles(t *testing.T) {
	db := setupTestDB(t)

	role := &models.Role{Name: "Designer", DefaultRate: 120}
	require.NoError(t, CreateRole(db, role))

	found, err := FindRoleByName(db, "designer")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, role.ID, found.ID)

	none, err := FindRoleByName(db, "Astronaut")
	require.NoError(t, err)
	assert.Nil(t, none)

	rate := 95.0
	dana := &models.Person{Name: "Dana", Email: "Dana@Example.com", RoleID: &role.ID, Rate: &rate, CanLogin: true}
	require.NoError(t, CreatePerson(db, dana))
	placeholder := &models.Person{Name: "Dana (ext)", Email: "dana@example.com", IsPlaceholder: true}
	require.NoError(t, CreatePerson(db, placeholder))

	got, err := FindPersonByEmail(db, " DANA@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, dana.ID, got.ID, "real people win over placeholders")
	assert.Equal(t, 95.0, *got.Rate)
	assert.Equal(t, role.ID, *got.RoleID)

	got, err = FindPersonByEmail(db, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdentityMappings(t *testing.T) {
	db := setupTestDB(t)

	person := &models.Person{Name: "Eve", Email: "eve@example.com"}
	require.NoError(t, CreatePerson(db, person))

	m := &models.IdentityMapping{
		PersonID:        person.ID,
		ExternalID:      "user-eve",
		Email:           "eve@example.com",
		DiscoveryMethod: models.DiscoveryAutoDiscovered,
	}
	require.NoError(t, SaveIdentityMapping(db, m))
	assert.NotNil(t, m.VerifiedAt)

	byPerson, err := GetIdentityMappingByPerson(db, person.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-eve", byPerson.ExternalID)

	byExternal, err := GetIdentityMappingByExternalID(db, "user-eve")
	require.NoError(t, err)
	assert.Equal(t, person.ID, byExternal.PersonID)

	byEmail, err := GetIdentityMappingByEmail(db, "EVE@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, person.ID, byEmail.PersonID)

	// Saving again replaces the person's mapping
	m.ExternalID = "user-eve-2"
	m.DiscoveryMethod = models.DiscoveryManual
	require.NoError(t, SaveIdentityMapping(db, m))
	byPerson, err = GetIdentityMappingByPerson(db, person.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-eve-2", byPerson.ExternalID)
	assert.Equal(t, models.DiscoveryManual, byPerson.DiscoveryMethod)

	// External ids are unique across people
	other := &models.Person{Name: "Mallory"}
	require.NoError(t, CreatePerson(db, other))
	err = SaveIdentityMapping(db, &models.IdentityMapping{PersonID: other.ID, ExternalID: "user-eve-2", DiscoveryMethod: models.DiscoveryManual})
	assert.Error(t, err)

	none, err := GetIdentityMappingByExternalID(db, "user-nobody")
	require.NoError(t, err)
	assert.Nil(t, none)
}
