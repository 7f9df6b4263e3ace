// ABOUTME: Identity mapping database operations
// ABOUTME: Maps internal people to external directory identities, lookupable three ways
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/plansync/models"
)

const identityColumns = `person_id, external_id, email, discovery_method, verified_at, created_at, updated_at`

// SaveIdentityMapping inserts or replaces the mapping for a person.
func SaveIdentityMapping(db Execer, m *models.IdentityMapping) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.VerifiedAt == nil {
		m.VerifiedAt = &now
	}

	_, err := db.Exec(`
		INSERT INTO identity_mappings (`+identityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(person_id) DO UPDATE SET
			external_id = excluded.external_id,
			email = excluded.email,
			discovery_method = excluded.discovery_method,
			verified_at = excluded.verified_at,
			updated_at = excluded.updated_at
	`, m.PersonID.String(), m.ExternalID, m.Email, m.DiscoveryMethod, m.VerifiedAt, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save identity mapping: %w", err)
	}

	return nil
}

func GetIdentityMappingByPerson(db *sql.DB, personID uuid.UUID) (*models.IdentityMapping, error) {
	return scanIdentityMapping(db.QueryRow(`
		SELECT `+identityColumns+` FROM identity_mappings WHERE person_id = ?
	`, personID.String()))
}

func GetIdentityMappingByExternalID(db *sql.DB, externalID string) (*models.IdentityMapping, error) {
	return scanIdentityMapping(db.QueryRow(`
		SELECT `+identityColumns+` FROM identity_mappings WHERE external_id = ?
	`, externalID))
}

func GetIdentityMappingByEmail(db *sql.DB, email string) (*models.IdentityMapping, error) {
	return scanIdentityMapping(db.QueryRow(`
		SELECT `+identityColumns+` FROM identity_mappings WHERE LOWER(email) = ? LIMIT 1
	`, strings.ToLower(strings.TrimSpace(email))))
}

func scanIdentityMapping(row *sql.Row) (*models.IdentityMapping, error) {
	m := &models.IdentityMapping{}
	var email sql.NullString

	err := row.Scan(&m.PersonID, &m.ExternalID, &email, &m.DiscoveryMethod, &m.VerifiedAt, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity mapping: %w", err)
	}

	m.Email = email.String
	return m, nil
}
