// ABOUTME: Project, epic and stage database operations
// ABOUTME: Handles the two-level epic/stage hierarchy and case-insensitive stage lookup
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/plansync/models"
)

// DefaultEpicName names the synthetic epic that holds stages created from imported buckets.
const DefaultEpicName = "Imported"

func CreateProject(db *sql.DB, project *models.Project) error {
	project.ID = uuid.New()
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err := db.Exec(`
		INSERT INTO projects (id, name, external_group_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, project.ID.String(), project.Name, project.ExternalGroupID, project.CreatedAt, project.UpdatedAt)

	return err
}

func GetProject(db *sql.DB, id uuid.UUID) (*models.Project, error) {
	project := &models.Project{}
	var groupID sql.NullString

	err := db.QueryRow(`
		SELECT id, name, external_group_id, created_at, updated_at
		FROM projects WHERE id = ?
	`, id.String()).Scan(&project.ID, &project.Name, &groupID, &project.CreatedAt, &project.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	project.ExternalGroupID = groupID.String
	return project, nil
}

// FindProjectByName matches a project name case-insensitively.
func FindProjectByName(db *sql.DB, name string) (*models.Project, error) {
	var id string
	err := db.QueryRow(`SELECT id FROM projects WHERE LOWER(name) = LOWER(?) ORDER BY created_at LIMIT 1`,
		strings.TrimSpace(name)).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	projectID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	return GetProject(db, projectID)
}

func ListProjects(db *sql.DB) ([]models.Project, error) {
	rows, err := db.Query(`SELECT id, name, external_group_id, created_at, updated_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		var groupID sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &groupID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.ExternalGroupID = groupID.String
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

func CreateEpic(db Execer, epic *models.Epic) error {
	epic.ID = uuid.New()
	epic.CreatedAt = time.Now()

	_, err := db.Exec(`
		INSERT INTO epics (id, project_id, name, is_default, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, epic.ID.String(), epic.ProjectID.String(), epic.Name, epic.IsDefault, epic.CreatedAt)

	return err
}

// GetOrCreateDefaultEpic returns the project's synthetic epic, creating it on first use.
func GetOrCreateDefaultEpic(db *sql.DB, projectID uuid.UUID) (*models.Epic, error) {
	epic := &models.Epic{}
	err := db.QueryRow(`
		SELECT id, project_id, name, is_default, created_at
		FROM epics WHERE project_id = ? AND is_default = 1
		ORDER BY created_at LIMIT 1
	`, projectID.String()).Scan(&epic.ID, &epic.ProjectID, &epic.Name, &epic.IsDefault, &epic.CreatedAt)

	if err == nil {
		return epic, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up default epic: %w", err)
	}

	epic = &models.Epic{ProjectID: projectID, Name: DefaultEpicName, IsDefault: true}
	if err := CreateEpic(db, epic); err != nil {
		return nil, fmt.Errorf("failed to create default epic: %w", err)
	}
	return epic, nil
}

func CreateStage(db Execer, stage *models.Stage) error {
	stage.ID = uuid.New()
	stage.CreatedAt = time.Now()

	_, err := db.Exec(`
		INSERT INTO stages (id, epic_id, name, created_at)
		VALUES (?, ?, ?, ?)
	`, stage.ID.String(), stage.EpicID.String(), stage.Name, stage.CreatedAt)

	return err
}

func GetStage(db *sql.DB, id uuid.UUID) (*models.Stage, error) {
	stage := &models.Stage{}
	err := db.QueryRow(`
		SELECT id, epic_id, name, created_at FROM stages WHERE id = ?
	`, id.String()).Scan(&stage.ID, &stage.EpicID, &stage.Name, &stage.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	return stage, err
}

// ListStagesByProject returns every stage under any of the project's epics.
func ListStagesByProject(db *sql.DB, projectID uuid.UUID) ([]models.Stage, error) {
	rows, err := db.Query(`
		SELECT s.id, s.epic_id, s.name, s.created_at
		FROM stages s
		JOIN epics e ON e.id = s.epic_id
		WHERE e.project_id = ?
		ORDER BY s.created_at
	`, projectID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []models.Stage
	for rows.Next() {
		var s models.Stage
		if err := rows.Scan(&s.ID, &s.EpicID, &s.Name, &s.CreatedAt); err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}

	return stages, rows.Err()
}

// FindStageByName matches a stage name case-insensitively within a project.
func FindStageByName(db *sql.DB, projectID uuid.UUID, name string) (*models.Stage, error) {
	stage := &models.Stage{}
	err := db.QueryRow(`
		SELECT s.id, s.epic_id, s.name, s.created_at
		FROM stages s
		JOIN epics e ON e.id = s.epic_id
		WHERE e.project_id = ? AND LOWER(TRIM(s.name)) = ?
		ORDER BY s.created_at
		LIMIT 1
	`, projectID.String(), strings.ToLower(strings.TrimSpace(name))).Scan(&stage.ID, &stage.EpicID, &stage.Name, &stage.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return stage, nil
}
