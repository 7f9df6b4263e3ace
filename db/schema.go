// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation for staffing records and sync state
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	external_group_id TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS epics (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	name TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_epics_project_id ON epics(project_id);

CREATE TABLE IF NOT EXISTS stages (
	id TEXT PRIMARY KEY,
	epic_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (epic_id) REFERENCES epics(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_stages_epic_id ON stages(epic_id);

CREATE TABLE IF NOT EXISTS roles (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	default_rate REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS people (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT,
	role_id TEXT,
	rate REAL,
	can_login INTEGER NOT NULL DEFAULT 1,
	is_assignable INTEGER NOT NULL DEFAULT 1,
	is_placeholder INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (role_id) REFERENCES roles(id)
);

CREATE INDEX IF NOT EXISTS idx_people_email ON people(LOWER(email));

CREATE TABLE IF NOT EXISTS allocations (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	epic_id TEXT,
	stage_id TEXT,
	person_id TEXT,
	role_id TEXT,
	hours REAL NOT NULL DEFAULT 0,
	rate REAL NOT NULL DEFAULT 0,
	pricing_mode TEXT NOT NULL DEFAULT 'role' CHECK(pricing_mode IN ('role', 'person')),
	workstream TEXT,
	week_number INTEGER NOT NULL DEFAULT 0,
	planned_start DATETIME,
	planned_end DATETIME,
	status TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'in_progress', 'completed', 'cancelled')),
	description TEXT,
	notes TEXT,
	started_date DATETIME,
	completed_date DATETIME,
	version INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (project_id) REFERENCES projects(id),
	FOREIGN KEY (stage_id) REFERENCES stages(id),
	FOREIGN KEY (person_id) REFERENCES people(id)
);

CREATE INDEX IF NOT EXISTS idx_allocations_project_id ON allocations(project_id);

CREATE TABLE IF NOT EXISTS connections (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL UNIQUE,
	external_plan_id TEXT NOT NULL,
	external_group_id TEXT,
	sync_enabled INTEGER NOT NULL DEFAULT 1,
	sync_direction TEXT NOT NULL DEFAULT 'bidirectional' CHECK(sync_direction IN ('outbound', 'inbound', 'bidirectional')),
	auto_add_members INTEGER NOT NULL DEFAULT 0,
	last_sync_at DATETIME,
	last_sync_status TEXT,
	last_sync_error TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (project_id) REFERENCES projects(id)
);

CREATE TABLE IF NOT EXISTS sync_ledger (
	id TEXT PRIMARY KEY,
	connection_id TEXT NOT NULL,
	allocation_id TEXT,
	external_task_id TEXT NOT NULL,
	bucket_id TEXT,
	bucket_name TEXT,
	status TEXT NOT NULL CHECK(status IN ('synced', 'import_failed', 'deleted_remote')),
	last_etag TEXT,
	last_synced_at DATETIME,
	error_text TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(connection_id, external_task_id),
	FOREIGN KEY (connection_id) REFERENCES connections(id) ON DELETE CASCADE,
	FOREIGN KEY (allocation_id) REFERENCES allocations(id) ON DELETE SET NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_ledger_allocation ON sync_ledger(connection_id, allocation_id) WHERE allocation_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_ledger_live_task ON sync_ledger(external_task_id) WHERE status != 'deleted_remote';

CREATE TABLE IF NOT EXISTS identity_mappings (
	person_id TEXT PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	email TEXT,
	discovery_method TEXT NOT NULL,
	verified_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY (person_id) REFERENCES people(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_identity_mappings_email ON identity_mappings(LOWER(email));

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	connection_id TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME,
	status TEXT NOT NULL CHECK(status IN ('running', 'success', 'partial', 'failed')),
	summary TEXT,
	fatal_error TEXT,
	FOREIGN KEY (connection_id) REFERENCES connections(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_connection ON sync_runs(connection_id, started_at DESC);
`

func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return err
	}
	_, err := db.Exec(schema)
	return err
}
