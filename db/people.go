// ABOUTME: Person and role database operations
// ABOUTME: Handles CRUD plus case-insensitive email lookup used by identity resolution
package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/plansync/models"
)

func CreateRole(db *sql.DB, role *models.Role) error {
	role.ID = uuid.New()

	_, err := db.Exec(`
		INSERT INTO roles (id, name, default_rate) VALUES (?, ?, ?)
	`, role.ID.String(), role.Name, role.DefaultRate)

	return err
}

func GetRole(db *sql.DB, id uuid.UUID) (*models.Role, error) {
	role := &models.Role{}
	err := db.QueryRow(`
		SELECT id, name, default_rate FROM roles WHERE id = ?
	`, id.String()).Scan(&role.ID, &role.Name, &role.DefaultRate)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	return role, err
}

func FindRoleByName(db *sql.DB, name string) (*models.Role, error) {
	role := &models.Role{}
	err := db.QueryRow(`
		SELECT id, name, default_rate FROM roles WHERE LOWER(name) = ?
	`, strings.ToLower(strings.TrimSpace(name))).Scan(&role.ID, &role.Name, &role.DefaultRate)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	return role, err
}

const personColumns = `id, name, email, role_id, rate, can_login, is_assignable, is_placeholder, created_at, updated_at`

func CreatePerson(db Execer, person *models.Person) error {
	person.ID = uuid.New()
	now := time.Now()
	person.CreatedAt = now
	person.UpdatedAt = now

	_, err := db.Exec(`
		INSERT INTO people (`+personColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, person.ID.String(), person.Name, person.Email, nullableUUID(person.RoleID), person.Rate,
		person.CanLogin, person.IsAssignable, person.IsPlaceholder, person.CreatedAt, person.UpdatedAt)

	return err
}

func GetPerson(db *sql.DB, id uuid.UUID) (*models.Person, error) {
	return scanPerson(db.QueryRow(`SELECT `+personColumns+` FROM people WHERE id = ?`, id.String()))
}

// FindPersonByEmail matches on a trimmed, lowercased email.
func FindPersonByEmail(db *sql.DB, email string) (*models.Person, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return nil, nil
	}
	return scanPerson(db.QueryRow(`
		SELECT `+personColumns+` FROM people
		WHERE LOWER(TRIM(email)) = ?
		ORDER BY is_placeholder, created_at
		LIMIT 1
	`, normalized))
}

func scanPerson(row *sql.Row) (*models.Person, error) {
	p := &models.Person{}
	var email, roleID sql.NullString
	var rate sql.NullFloat64

	err := row.Scan(&p.ID, &p.Name, &email, &roleID, &rate, &p.CanLogin, &p.IsAssignable, &p.IsPlaceholder, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Email = email.String
	p.RoleID = parseNullableUUID(roleID)
	if rate.Valid {
		p.Rate = &rate.Float64
	}
	return p, nil
}
