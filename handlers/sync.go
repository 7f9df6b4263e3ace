// ABOUTME: Sync MCP tool handlers
// ABOUTME: Implements run_sync, list_connections, get_sync_status and set_sync_enabled tools
package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SyncRunner runs one connection unless a run for it is already in flight.
type SyncRunner interface {
	TryRun(ctx context.Context, connectionID uuid.UUID) (*models.RunSummary, bool, error)
}

var ErrSyncNotConfigured = errors.New("sync is not configured. Run 'plansync sync init' first")

type SyncHandlers struct {
	db     *sql.DB
	runner SyncRunner
}

// NewSyncHandlers creates the sync tools. A nil runner leaves the read-only tools
// working and makes run_sync report that credentials are missing.
func NewSyncHandlers(database *sql.DB, runner SyncRunner) *SyncHandlers {
	return &SyncHandlers{db: database, runner: runner}
}

type ConnectionOutput struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"project_id"`
	ProjectName     string  `json:"project_name,omitempty"`
	ExternalPlanID  string  `json:"external_plan_id"`
	ExternalGroupID string  `json:"external_group_id,omitempty"`
	SyncEnabled     bool    `json:"sync_enabled"`
	SyncDirection   string  `json:"sync_direction"`
	AutoAddMembers  bool    `json:"auto_add_members"`
	LastSyncAt      *string `json:"last_sync_at,omitempty"`
	LastSyncStatus  string  `json:"last_sync_status,omitempty"`
	LastSyncError   string  `json:"last_sync_error,omitempty"`
}

type SummaryOutput struct {
	Created        int      `json:"created"`
	Updated        int      `json:"updated"`
	InboundUpdated int      `json:"inbound_updated"`
	InboundDeleted int      `json:"inbound_deleted"`
	TasksImported  int      `json:"tasks_imported"`
	TasksSkipped   int      `json:"tasks_skipped"`
	Errors         []string `json:"errors"`
}

type RunSyncInput struct {
	ConnectionID string `json:"connection_id" jsonschema:"Connection ID to sync (required)"`
}

type RunSyncOutput struct {
	ConnectionID string        `json:"connection_id"`
	Status       string        `json:"status"`
	Summary      SummaryOutput `json:"summary"`
}

func (h *SyncHandlers) RunSync(ctx context.Context, request *mcp.CallToolRequest, input RunSyncInput) (*mcp.CallToolResult, RunSyncOutput, error) {
	id, err := parseConnectionID(input.ConnectionID)
	if err != nil {
		return nil, RunSyncOutput{}, err
	}
	if h.runner == nil {
		return nil, RunSyncOutput{}, ErrSyncNotConfigured
	}

	summary, ran, err := h.runner.TryRun(ctx, id)
	if err != nil {
		return nil, RunSyncOutput{}, fmt.Errorf("sync failed: %w", err)
	}
	if !ran {
		return nil, RunSyncOutput{}, fmt.Errorf("a sync for connection %s is already in progress", id)
	}

	status := models.RunStatusSuccess
	if len(summary.Errors) > 0 {
		status = models.RunStatusPartial
	}

	return nil, RunSyncOutput{
		ConnectionID: id.String(),
		Status:       status,
		Summary:      summaryToOutput(summary),
	}, nil
}

type ListConnectionsInput struct {
	EnabledOnly bool `json:"enabled_only,omitempty" jsonschema:"Only list connections with sync enabled"`
}

type ListConnectionsOutput struct {
	Connections []ConnectionOutput `json:"connections"`
	Count       int                `json:"count"`
}

func (h *SyncHandlers) ListConnections(_ context.Context, request *mcp.CallToolRequest, input ListConnectionsInput) (*mcp.CallToolResult, ListConnectionsOutput, error) {
	connections, err := db.ListConnections(h.db)
	if err != nil {
		return nil, ListConnectionsOutput{}, fmt.Errorf("failed to list connections: %w", err)
	}

	projectNames := make(map[uuid.UUID]string)
	outputs := make([]ConnectionOutput, 0, len(connections))
	for i := range connections {
		conn := &connections[i]
		if input.EnabledOnly && !conn.SyncEnabled {
			continue
		}

		name, ok := projectNames[conn.ProjectID]
		if !ok {
			if project, err := db.GetProject(h.db, conn.ProjectID); err == nil && project != nil {
				name = project.Name
			}
			projectNames[conn.ProjectID] = name
		}

		out := connectionToOutput(conn)
		out.ProjectName = name
		outputs = append(outputs, out)
	}

	return nil, ListConnectionsOutput{Connections: outputs, Count: len(outputs)}, nil
}

type GetSyncStatusInput struct {
	ConnectionID string `json:"connection_id" jsonschema:"Connection ID (required)"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Maximum number of runs to return (default 5)"`
}

type SyncRunOutput struct {
	ID         string        `json:"id"`
	StartedAt  string        `json:"started_at"`
	FinishedAt *string       `json:"finished_at,omitempty"`
	Status     string        `json:"status"`
	Summary    SummaryOutput `json:"summary"`
	FatalError string        `json:"fatal_error,omitempty"`
}

type GetSyncStatusOutput struct {
	Connection    ConnectionOutput `json:"connection"`
	LinkedTasks   int              `json:"linked_tasks"`
	DeletedTasks  int              `json:"deleted_tasks"`
	FailedImports int              `json:"failed_imports"`
	Runs          []SyncRunOutput  `json:"runs"`
}

func (h *SyncHandlers) GetSyncStatus(_ context.Context, request *mcp.CallToolRequest, input GetSyncStatusInput) (*mcp.CallToolResult, GetSyncStatusOutput, error) {
	conn, err := h.loadConnection(input.ConnectionID)
	if err != nil {
		return nil, GetSyncStatusOutput{}, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 5
	}

	runs, err := db.ListSyncRuns(h.db, conn.ID, limit)
	if err != nil {
		return nil, GetSyncStatusOutput{}, fmt.Errorf("failed to list sync runs: %w", err)
	}

	entries, err := db.FindLedgerByConnection(h.db, conn.ID)
	if err != nil {
		return nil, GetSyncStatusOutput{}, fmt.Errorf("failed to load ledger: %w", err)
	}

	output := GetSyncStatusOutput{
		Connection: connectionToOutput(conn),
		Runs:       make([]SyncRunOutput, 0, len(runs)),
	}
	for _, e := range entries {
		switch e.Status {
		case models.LedgerSynced:
			output.LinkedTasks++
		case models.LedgerDeletedRemote:
			output.DeletedTasks++
		case models.LedgerImportFailed:
			output.FailedImports++
		}
	}
	for i := range runs {
		output.Runs = append(output.Runs, runToOutput(&runs[i]))
	}

	return nil, output, nil
}

type SetSyncEnabledInput struct {
	ConnectionID string `json:"connection_id" jsonschema:"Connection ID (required)"`
	Enabled      bool   `json:"enabled" jsonschema:"Whether sync should run for this connection"`
}

func (h *SyncHandlers) SetSyncEnabled(_ context.Context, request *mcp.CallToolRequest, input SetSyncEnabledInput) (*mcp.CallToolResult, ConnectionOutput, error) {
	conn, err := h.loadConnection(input.ConnectionID)
	if err != nil {
		return nil, ConnectionOutput{}, err
	}

	if err := db.SetConnectionEnabled(h.db, conn.ID, input.Enabled); err != nil {
		return nil, ConnectionOutput{}, fmt.Errorf("failed to update connection: %w", err)
	}
	conn.SyncEnabled = input.Enabled

	return nil, connectionToOutput(conn), nil
}

func (h *SyncHandlers) loadConnection(idStr string) (*models.Connection, error) {
	id, err := parseConnectionID(idStr)
	if err != nil {
		return nil, err
	}

	conn, err := db.GetConnection(h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("connection not found: %s", idStr)
	}
	return conn, nil
}

func parseConnectionID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("connection_id is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid connection_id: %w", err)
	}
	return id, nil
}

func connectionToOutput(conn *models.Connection) ConnectionOutput {
	out := ConnectionOutput{
		ID:              conn.ID.String(),
		ProjectID:       conn.ProjectID.String(),
		ExternalPlanID:  conn.ExternalPlanID,
		ExternalGroupID: conn.ExternalGroupID,
		SyncEnabled:     conn.SyncEnabled,
		SyncDirection:   conn.SyncDirection,
		AutoAddMembers:  conn.AutoAddMembers,
		LastSyncStatus:  conn.LastSyncStatus,
		LastSyncError:   conn.LastSyncError,
	}
	if conn.LastSyncAt != nil {
		ts := conn.LastSyncAt.Format(time.RFC3339)
		out.LastSyncAt = &ts
	}
	return out
}

func runToOutput(run *models.SyncRun) SyncRunOutput {
	out := SyncRunOutput{
		ID:         run.ID,
		StartedAt:  run.StartedAt.Format(time.RFC3339),
		Status:     run.Status,
		Summary:    summaryToOutput(&run.Summary),
		FatalError: run.FatalError,
	}
	if run.FinishedAt != nil {
		ts := run.FinishedAt.Format(time.RFC3339)
		out.FinishedAt = &ts
	}
	return out
}

func summaryToOutput(s *models.RunSummary) SummaryOutput {
	errs := s.Errors
	if errs == nil {
		errs = []string{}
	}
	return SummaryOutput{
		Created:        s.Created,
		Updated:        s.Updated,
		InboundUpdated: s.InboundUpdated,
		InboundDeleted: s.InboundDeleted,
		TasksImported:  s.TasksImported,
		TasksSkipped:   s.TasksSkipped,
		Errors:         errs,
	}
}
