// ABOUTME: Shared fixtures for database tests
// ABOUTME: Builds a project with an epic, stage and connection
package db

import (
	"database/sql"
	"testing"

	"github.com/harperreed/plansync/models"
	"github.com/stretchr/testify/require"
)

type testProject struct {
	project *models.Project
	epic    *models.Epic
	stage   *models.Stage
	conn    *models.Connection
}

func createTestProject(t *testing.T, db *sql.DB, name, planID string) testProject {
	t.Helper()

	project := &models.Project{Name: name}
	require.NoError(t, CreateProject(db, project))

	epic := &models.Epic{ProjectID: project.ID, Name: "Phase 1"}
	require.NoError(t, CreateEpic(db, epic))

	stage := &models.Stage{EpicID: epic.ID, Name: "Design"}
	require.NoError(t, CreateStage(db, stage))

	conn := &models.Connection{ProjectID: project.ID, ExternalPlanID: planID, SyncEnabled: true}
	require.NoError(t, CreateConnection(db, conn))

	return testProject{project: project, epic: epic, stage: stage, conn: conn}
}
