// ABOUTME: Data models for staffing records and task-board sync state
// ABOUTME: Defines Connection, Allocation, Stage, Person, ledger and identity structs
package models

import (
	"time"

	"github.com/google/uuid"
)

type Project struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	ExternalGroupID string    `json:"external_group_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Epic struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

type Stage struct {
	ID        uuid.UUID `json:"id"`
	EpicID    uuid.UUID `json:"epic_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Role struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	DefaultRate float64   `json:"default_rate"`
}

type Person struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email,omitempty"`
	RoleID        *uuid.UUID `json:"role_id,omitempty"`
	Rate          *float64   `json:"rate,omitempty"`
	CanLogin      bool       `json:"can_login"`
	IsAssignable  bool       `json:"is_assignable"`
	IsPlaceholder bool       `json:"is_placeholder"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Allocation statuses.
const (
	AllocationOpen       = "open"
	AllocationInProgress = "in_progress"
	AllocationCompleted  = "completed"
	AllocationCancelled  = "cancelled"
)

// Pricing modes.
const (
	PricingRole   = "role"
	PricingPerson = "person"
)

type Allocation struct {
	ID            uuid.UUID  `json:"id"`
	ProjectID     uuid.UUID  `json:"project_id"`
	EpicID        *uuid.UUID `json:"epic_id,omitempty"`
	StageID       *uuid.UUID `json:"stage_id,omitempty"`
	PersonID      *uuid.UUID `json:"person_id,omitempty"`
	RoleID        *uuid.UUID `json:"role_id,omitempty"`
	Hours         float64    `json:"hours"`
	Rate          float64    `json:"rate"`
	PricingMode   string     `json:"pricing_mode"`
	Workstream    string     `json:"workstream,omitempty"`
	WeekNumber    int        `json:"week_number,omitempty"`
	PlannedStart  *time.Time `json:"planned_start,omitempty"`
	PlannedEnd    *time.Time `json:"planned_end,omitempty"`
	Status        string     `json:"status"`
	Description   string     `json:"description,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	StartedDate   *time.Time `json:"started_date,omitempty"`
	CompletedDate *time.Time `json:"completed_date,omitempty"`
	Version       int        `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Sync directions.
const (
	DirectionOutbound      = "outbound"
	DirectionInbound       = "inbound"
	DirectionBidirectional = "bidirectional"
)

// Connection run outcomes.
const (
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

type Connection struct {
	ID              uuid.UUID  `json:"id"`
	ProjectID       uuid.UUID  `json:"project_id"`
	ExternalPlanID  string     `json:"external_plan_id"`
	ExternalGroupID string     `json:"external_group_id,omitempty"`
	SyncEnabled     bool       `json:"sync_enabled"`
	SyncDirection   string     `json:"sync_direction"`
	AutoAddMembers  bool       `json:"auto_add_members"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	LastSyncStatus  string     `json:"last_sync_status,omitempty"`
	LastSyncError   string     `json:"last_sync_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SyncsOutbound reports whether the connection pushes allocations out.
func (c *Connection) SyncsOutbound() bool {
	return c.SyncDirection == DirectionOutbound || c.SyncDirection == DirectionBidirectional
}

// SyncsInbound reports whether the connection pulls task state back in.
func (c *Connection) SyncsInbound() bool {
	return c.SyncDirection == DirectionInbound || c.SyncDirection == DirectionBidirectional
}

// Ledger statuses.
const (
	LedgerSynced        = "synced"
	LedgerImportFailed  = "import_failed"
	LedgerDeletedRemote = "deleted_remote"
)

type LedgerEntry struct {
	ID             uuid.UUID  `json:"id"`
	ConnectionID   uuid.UUID  `json:"connection_id"`
	AllocationID   *uuid.UUID `json:"allocation_id,omitempty"`
	ExternalTaskID string     `json:"external_task_id"`
	BucketID       string     `json:"bucket_id,omitempty"`
	BucketName     string     `json:"bucket_name,omitempty"`
	Status         string     `json:"status"`
	LastEtag       string     `json:"last_etag,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	ErrorText      string     `json:"error_text,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Identity discovery methods.
const (
	DiscoveryManual                 = "manual"
	DiscoveryAutoDiscovered         = "auto_discovered"
	DiscoveryAutoDiscoveredFromSync = "auto_discovered_from_sync"
	DiscoveryAutoCreated            = "auto_created"
)

type IdentityMapping struct {
	PersonID        uuid.UUID  `json:"person_id"`
	ExternalID      string     `json:"external_id"`
	Email           string     `json:"email,omitempty"`
	DiscoveryMethod string     `json:"discovery_method"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type SyncRun struct {
	ID           string     `json:"id"`
	ConnectionID uuid.UUID  `json:"connection_id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	Summary      RunSummary `json:"summary"`
	FatalError   string     `json:"fatal_error,omitempty"`
}

// RunSummary is the result of one reconciliation run.
type RunSummary struct {
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	InboundUpdated int      `json:"inbound_updated"`
	InboundDeleted int      `json:"inbound_deleted"`
	TasksImported  int      `json:"tasks_imported"`
	TasksSkipped   int      `json:"tasks_skipped"`
	Errors         []string `json:"errors"`
}
