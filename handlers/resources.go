// ABOUTME: MCP resource handlers for exposing sync state
// ABOUTME: Provides read-only access to connections, their ledger and run history via URI
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const resourceScheme = "plansync://"

type ResourceHandlers struct {
	db *sql.DB
}

func NewResourceHandlers(database *sql.DB) *ResourceHandlers {
	return &ResourceHandlers{db: database}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")

	switch parts[0] {
	case "connections":
		switch len(parts) {
		case 1:
			return h.readAllConnections(uri)
		case 2:
			return h.readConnection(uri, parts[1])
		case 3:
			if parts[2] == "runs" {
				return h.readRuns(uri, parts[1])
			}
		}
		return nil, fmt.Errorf("unknown connection resource: %s", uri)

	default:
		return nil, fmt.Errorf("unknown resource: %s", parts[0])
	}
}

func (h *ResourceHandlers) readAllConnections(uri string) (*mcp.ReadResourceResult, error) {
	connections, err := db.ListConnections(h.db)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch connections: %w", err)
	}
	if connections == nil {
		connections = []models.Connection{}
	}

	return jsonResource(uri, connections)
}

func (h *ResourceHandlers) readConnection(uri, idStr string) (*mcp.ReadResourceResult, error) {
	id, err := parseConnectionID(idStr)
	if err != nil {
		return nil, err
	}

	conn, err := db.GetConnection(h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("connection not found: %s", idStr)
	}

	// Include the ledger so callers can see every linked task
	entries, err := db.FindLedgerByConnection(h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger: %w", err)
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}

	connectionData := struct {
		models.Connection
		Ledger []models.LedgerEntry `json:"ledger"`
	}{
		Connection: *conn,
		Ledger:     entries,
	}

	return jsonResource(uri, connectionData)
}

func (h *ResourceHandlers) readRuns(uri, idStr string) (*mcp.ReadResourceResult, error) {
	id, err := parseConnectionID(idStr)
	if err != nil {
		return nil, err
	}

	runs, err := db.ListSyncRuns(h.db, id, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync runs: %w", err)
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}

	return jsonResource(uri, runs)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
