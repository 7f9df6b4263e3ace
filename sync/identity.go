// ABOUTME: Identity resolver linking internal people to external directory identities
// ABOUTME: Discovers mappings lazily by email and caches lookups for the duration of one run
package sync

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
)

// ResolverOptions carries the connection-level switches the resolver honors.
type ResolverOptions struct {
	GroupID          string
	AutoAddMembers   bool
	AutoCreatePeople bool
}

// IdentityResolver resolves identities in both directions. It is not safe for
// concurrent use and must not outlive a single run.
type IdentityResolver struct {
	db        *sql.DB
	directory Directory
	opts      ResolverOptions
	logger    *log.Logger

	byPerson   map[uuid.UUID]*models.IdentityMapping
	byExternal map[string]*models.Person
	unmatched  map[string]*models.ExternalIdentity
}

func NewIdentityResolver(database *sql.DB, directory Directory, opts ResolverOptions, logger *log.Logger) *IdentityResolver {
	return &IdentityResolver{
		db:         database,
		directory:  directory,
		opts:       opts,
		logger:     logger,
		byPerson:   make(map[uuid.UUID]*models.IdentityMapping),
		byExternal: make(map[string]*models.Person),
		unmatched:  make(map[string]*models.ExternalIdentity),
	}
}

// ResolveExternalForPerson returns the person's external identity mapping, discovering
// it by email when none is stored. Returns nil, nil when the person has no identity.
func (r *IdentityResolver) ResolveExternalForPerson(ctx context.Context, person *models.Person) (*models.IdentityMapping, error) {
	if m, ok := r.byPerson[person.ID]; ok {
		return m, nil
	}

	m, err := db.GetIdentityMappingByPerson(r.db, person.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity mapping: %w", err)
	}
	if m != nil {
		r.byPerson[person.ID] = m
		return m, nil
	}

	email := normalizeEmail(person.Email)
	if email == "" {
		r.byPerson[person.ID] = nil
		return nil, nil
	}

	// An identity already linked under this email needs no directory round-trip.
	claimed, err := db.GetIdentityMappingByEmail(r.db, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity mapping: %w", err)
	}
	if claimed != nil && claimed.PersonID != person.ID {
		r.byPerson[person.ID] = nil
		return nil, fmt.Errorf("external identity %s is already mapped to person %s", claimed.ExternalID, claimed.PersonID)
	}

	identity, err := r.directory.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("directory lookup for %s failed: %w", email, err)
	}
	if identity == nil {
		r.byPerson[person.ID] = nil
		return nil, nil
	}

	existing, err := db.GetIdentityMappingByExternalID(r.db, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity mapping: %w", err)
	}
	if existing != nil && existing.PersonID != person.ID {
		r.byPerson[person.ID] = nil
		return nil, fmt.Errorf("external identity %s is already mapped to person %s", identity.ID, existing.PersonID)
	}

	m = &models.IdentityMapping{
		PersonID:        person.ID,
		ExternalID:      identity.ID,
		Email:           email,
		DiscoveryMethod: models.DiscoveryAutoDiscovered,
	}
	if err := db.SaveIdentityMapping(r.db, m); err != nil {
		return nil, err
	}
	r.byPerson[person.ID] = m

	if r.opts.AutoAddMembers && r.opts.GroupID != "" {
		if err := r.directory.AddUserToGroup(ctx, r.opts.GroupID, identity.ID); err != nil {
			r.logger.Warn("could not add user to group", "user", identity.ID, "group", r.opts.GroupID, "err", err)
		}
	}

	return m, nil
}

// ResolveInternalForExternal returns the person behind an external identity id,
// matching by email and optionally creating a placeholder person. Returns nil, nil
// when nobody matches and auto-creation is off.
func (r *IdentityResolver) ResolveInternalForExternal(ctx context.Context, externalID string) (*models.Person, error) {
	person, identity, err := r.MatchInternalForExternal(ctx, externalID)
	if err != nil || person != nil || identity == nil {
		return person, err
	}
	if !r.opts.AutoCreatePeople {
		r.byExternal[externalID] = nil
		return nil, nil
	}

	placeholder := r.NewPlaceholder(identity)
	if err := db.CreatePerson(r.db, placeholder.Person); err != nil {
		return nil, fmt.Errorf("failed to create person for %s: %w", identity.ID, err)
	}
	placeholder.Mapping.PersonID = placeholder.Person.ID
	if err := db.SaveIdentityMapping(r.db, placeholder.Mapping); err != nil {
		return nil, err
	}
	r.Remember(placeholder)
	return placeholder.Person, nil
}

// MatchInternalForExternal resolves an external identity id to a stored person
// without creating anyone. When no person matches but the directory knows the
// identity, the identity is returned so the caller can create a placeholder.
func (r *IdentityResolver) MatchInternalForExternal(ctx context.Context, externalID string) (*models.Person, *models.ExternalIdentity, error) {
	if p, ok := r.byExternal[externalID]; ok {
		return p, nil, nil
	}
	if identity, ok := r.unmatched[externalID]; ok {
		return nil, identity, nil
	}

	m, err := db.GetIdentityMappingByExternalID(r.db, externalID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up identity mapping: %w", err)
	}
	if m != nil {
		person, err := db.GetPerson(r.db, m.PersonID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load person: %w", err)
		}
		r.byExternal[externalID] = person
		return person, nil, nil
	}

	identity, err := r.directory.FindUserByID(ctx, externalID)
	if err != nil {
		return nil, nil, fmt.Errorf("directory lookup for %s failed: %w", externalID, err)
	}
	if identity == nil {
		r.byExternal[externalID] = nil
		return nil, nil, nil
	}

	if email := normalizeEmail(identity.Email); email != "" {
		person, err := db.FindPersonByEmail(r.db, email)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to look up person: %w", err)
		}
		if person != nil {
			if err := r.linkDiscovered(person, identity.ID, email); err != nil {
				return nil, nil, err
			}
			r.byExternal[externalID] = person
			return person, nil, nil
		}
	}

	r.unmatched[externalID] = identity
	return nil, identity, nil
}

// linkDiscovered stores a mapping for a person found by email, unless the person
// is already linked to another identity.
func (r *IdentityResolver) linkDiscovered(person *models.Person, externalID, email string) error {
	existing, err := db.GetIdentityMappingByPerson(r.db, person.ID)
	if err != nil {
		return fmt.Errorf("failed to look up identity mapping: %w", err)
	}
	if existing != nil {
		r.logger.Debug("person already mapped, keeping existing identity",
			"person", person.ID, "mapped", existing.ExternalID, "seen", externalID)
		return nil
	}

	m := &models.IdentityMapping{
		PersonID:        person.ID,
		ExternalID:      externalID,
		Email:           email,
		DiscoveryMethod: models.DiscoveryAutoDiscoveredFromSync,
	}
	if err := db.SaveIdentityMapping(r.db, m); err != nil {
		return err
	}
	r.byPerson[person.ID] = m
	return nil
}

// NewPlaceholder builds an unsaved placeholder person and its auto-created mapping
// for a directory identity. The mapping's PersonID is filled once the person is stored.
func (r *IdentityResolver) NewPlaceholder(identity *models.ExternalIdentity) *db.Placeholder {
	email := normalizeEmail(identity.Email)
	name := identity.DisplayName
	if name == "" {
		name = email
	}
	if name == "" {
		name = identity.ID
	}

	return &db.Placeholder{
		Person: &models.Person{
			Name:          name,
			Email:         email,
			CanLogin:      false,
			IsAssignable:  true,
			IsPlaceholder: true,
		},
		Mapping: &models.IdentityMapping{
			ExternalID:      identity.ID,
			Email:           email,
			DiscoveryMethod: models.DiscoveryAutoCreated,
		},
	}
}

// Remember caches a placeholder once it has been stored.
func (r *IdentityResolver) Remember(p *db.Placeholder) {
	delete(r.unmatched, p.Mapping.ExternalID)
	r.byExternal[p.Mapping.ExternalID] = p.Person
	r.byPerson[p.Person.ID] = p.Mapping
	r.logger.Info("created placeholder person", "person", p.Person.ID, "external", p.Mapping.ExternalID)
}
