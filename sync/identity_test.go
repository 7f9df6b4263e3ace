// ABOUTME: Tests for the identity resolver in both directions
// ABOUTME: Covers discovery by email, group membership, placeholders and run caching
package sync

import (
	"context"
	"testing"

	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveExternalForPersonDiscoversByEmail(t *testing.T) {
	database := setupTestDB(t)
	dir := newFakeDirectory(models.ExternalIdentity{ID: "user-1", Email: "alice@example.com"})
	r := NewIdentityResolver(database, dir, ResolverOptions{GroupID: "g1", AutoAddMembers: true}, testLogger())

	alice := &models.Person{Name: "Alice", Email: "Alice@Example.com"}
	require.NoError(t, db.CreatePerson(database, alice))

	m, err := r.ResolveExternalForPerson(context.Background(), alice)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "user-1", m.ExternalID)
	assert.Equal(t, models.DiscoveryAutoDiscovered, m.DiscoveryMethod)
	assert.NotNil(t, m.VerifiedAt)
	assert.Equal(t, []string{"g1/user-1"}, dir.groupAdds)

	stored, err := db.GetIdentityMappingByPerson(database, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.ExternalID)

	lookups := dir.lookups
	_, err = r.ResolveExternalForPerson(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, lookups, dir.lookups, "second call should hit the run cache")
}

func TestResolveExternalForPersonUsesStoredMapping(t *testing.T) {
	database := setupTestDB(t)
	dir := newFakeDirectory()
	r := NewIdentityResolver(database, dir, ResolverOptions{}, testLogger())

	bob := &models.Person{Name: "Bob"}
	require.NoError(t, db.CreatePerson(database, bob))
	require.NoError(t, db.SaveIdentityMapping(database, &models.IdentityMapping{
		PersonID: bob.ID, ExternalID: "user-bob", DiscoveryMethod: models.DiscoveryManual,
	}))

	m, err := r.ResolveExternalForPerson(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, "user-bob", m.ExternalID)
	assert.Equal(t, 0, dir.lookups)
}

func TestResolveExternalForPersonMisses(t *testing.T) {
	database := setupTestDB(t)
	dir := newFakeDirectory()
	r := NewIdentityResolver(database, dir, ResolverOptions{}, testLogger())

	noEmail := &models.Person{Name: "No Email"}
	require.NoError(t, db.CreatePerson(database, noEmail))
	m, err := r.ResolveExternalForPerson(context.Background(), noEmail)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, 0, dir.lookups)

	unknown := &models.Person{Name: "Unknown", Email: "unknown@example.com"}
	require.NoError(t, db.CreatePerson(database, unknown))
	m, err = r.ResolveExternalForPerson(context.Background(), unknown)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestResolveExternalForPersonGroupFailureIsNotFatal(t *testing.T) {
	database := setupTestDB(t)
	dir := newFakeDirectory(models.ExternalIdentity{ID: "user-1", Email: "alice@example.com"})
	dir.failAdd = true
	r := NewIdentityResolver(database, dir, ResolverOptions{GroupID: "g1", AutoAddMembers: true}, testLogger())

	alice := &models.Person{Name: "Alice", Email: "alice@example.com"}
	require.NoError(t, db.CreatePerson(database, alice))

	m, err := r.ResolveExternalForPerson(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "user-1", m.ExternalID)
}

func TestResolveExternalForPersonRejectsClaimedIdentity(t *testing.T) {
	database := setupTestDB(t)
	dir := newFakeDirectory(models.ExternalIdentity{ID: "user-1", Email: "shared@example.com"})
	r := NewIdentityResolver(database, dir, ResolverOptions{}, testLogger())

	first := &models.Person{Name: "First"}
	second := &models.Person{Name: "Second", Email: "shared@example.com"}
	require.NoError(t, db.CreatePerson(database, first))
	require.NoError(t, db.CreatePerson(database, second))
	require.NoError(t, db.SaveIdentityMapping(database, &models.IdentityMapping{
		PersonID: first.ID, ExternalID: "user-1", DiscoveryMethod: models.DiscoveryManual,
	}))

	m, err := r.ResolveExternalForPerson(context.Background(), second)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Contains(t, err.Error(), "already mapped")
}

func TestResolveExternalForPersonChecksEmailIndexFirst(t *testing.T) {
	database := setupTestDB(t)
	dir := newFakeDirectory(models.ExternalIdentity{ID: "user-1", Email: "shared@example.com"})
	r := NewIdentityResolver(database, dir, ResolverOptions{}, testLogger())

	first := &models.Person{Name: "First", Email: "shared@example.com"}
	second := &models.Person{Name: "Second", Email: " SHARED@example.com "}
	require.NoError(t, db.CreatePerson(database, first))
	require.NoError(t, db.CreatePerson(database, second))
	require.NoError(t, db.SaveIdentityMapping(database, &models.IdentityMapping{
		PersonID: first.ID, ExternalID: "user-1", Email: "shared@example.com", DiscoveryMethod: models.DiscoveryAutoDiscovered,
	}))

	m, err := r.ResolveExternalForPerson(context.Background(), second)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Contains(t, err.Error(), "already mapped")
	assert.Equal(t, 0, dir.lookups, "the stored email mapping answers without the directory")

	// The owner of the mapping still resolves through its own row.
	m, err = r.ResolveExternalForPerson(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, "user-1", m.ExternalID)
}

func TestResolveInternalForExternal(t *testing.T) {
	database := setupTestDB(t)
	dir := newFakeDirectory(
		models.ExternalIdentity{ID: "user-1", DisplayName: "Alice", Email: "ALICE@example.com"},
		models.ExternalIdentity{ID: "user-2", DisplayName: "Stranger", Email: "stranger@example.com"},
	)
	r := NewIdentityResolver(database, dir, ResolverOptions{}, testLogger())

	alice := &models.Person{Name: "Alice", Email: "alice@example.com"}
	require.NoError(t, db.CreatePerson(database, alice))

	person, err := r.ResolveInternalForExternal(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, person)
	assert.Equal(t, alice.ID, person.ID)

	m, err := db.GetIdentityMappingByExternalID(database, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.DiscoveryAutoDiscoveredFromSync, m.DiscoveryMethod)

	person, err = r.ResolveInternalForExternal(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Nil(t, person, "no auto-create means no person")

	person, err = r.ResolveInternalForExternal(context.Background(), "user-unknown")
	require.NoError(t, err)
	assert.Nil(t, person)
}

func TestResolveInternalForExternalAutoCreates(t *testing.T) {
	database := setupTestDB(t)
	dir := newFakeDirectory(models.ExternalIdentity{ID: "user-9", DisplayName: "Contractor", Email: "c@example.com"})
	r := NewIdentityResolver(database, dir, ResolverOptions{AutoCreatePeople: true}, testLogger())

	person, err := r.ResolveInternalForExternal(context.Background(), "user-9")
	require.NoError(t, err)
	require.NotNil(t, person)
	assert.Equal(t, "Contractor", person.Name)
	assert.False(t, person.CanLogin)
	assert.True(t, person.IsAssignable)
	assert.True(t, person.IsPlaceholder)

	m, err := db.GetIdentityMappingByPerson(database, person.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DiscoveryAutoCreated, m.DiscoveryMethod)
	assert.Equal(t, "user-9", m.ExternalID)

	// A fresh resolver, as in the next run, reuses the stored mapping.
	next := NewIdentityResolver(database, dir, ResolverOptions{AutoCreatePeople: true}, testLogger())
	again, err := next.ResolveInternalForExternal(context.Background(), "user-9")
	require.NoError(t, err)
	assert.Equal(t, person.ID, again.ID)
}

func TestMatchInternalForExternalCreatesNothing(t *testing.T) {
	database := setupTestDB(t)
	dir := newFakeDirectory(models.ExternalIdentity{ID: "user-9", DisplayName: "Contractor", Email: "C@example.com"})
	r := NewIdentityResolver(database, dir, ResolverOptions{AutoCreatePeople: true}, testLogger())

	person, identity, err := r.MatchInternalForExternal(context.Background(), "user-9")
	require.NoError(t, err)
	assert.Nil(t, person)
	require.NotNil(t, identity)
	assert.Equal(t, "user-9", identity.ID)

	stored, err := db.FindPersonByEmail(database, "c@example.com")
	require.NoError(t, err)
	assert.Nil(t, stored)

	_, _, err = r.MatchInternalForExternal(context.Background(), "user-9")
	require.NoError(t, err)
	assert.Equal(t, 1, dir.lookups, "unmatched identities are cached for the run")

	placeholder := r.NewPlaceholder(identity)
	assert.Equal(t, "c@example.com", placeholder.Person.Email)
	assert.True(t, placeholder.Person.IsPlaceholder)
	assert.Equal(t, models.DiscoveryAutoCreated, placeholder.Mapping.DiscoveryMethod)

	require.NoError(t, db.CreatePerson(database, placeholder.Person))
	placeholder.Mapping.PersonID = placeholder.Person.ID
	require.NoError(t, db.SaveIdentityMapping(database, placeholder.Mapping))
	r.Remember(placeholder)

	person, err = r.ResolveInternalForExternal(context.Background(), "user-9")
	require.NoError(t, err)
	require.NotNil(t, person)
	assert.Equal(t, placeholder.Person.ID, person.ID)
	assert.Equal(t, 1, dir.lookups)
}

func TestResolveInternalForExternalDirectoryFailure(t *testing.T) {
	database := setupTestDB(t)
	dir := newFakeDirectory()
	dir.failLookup = true
	r := NewIdentityResolver(database, dir, ResolverOptions{AutoCreatePeople: true}, testLogger())

	person, err := r.ResolveInternalForExternal(context.Background(), "user-1")
	require.ErrorIs(t, err, errInjected)
	assert.Nil(t, person)
}
