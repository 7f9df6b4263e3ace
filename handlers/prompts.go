// ABOUTME: MCP prompt handlers for reusable sync review templates
// ABOUTME: Builds prompts that summarize a connection's recent runs and failures
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type PromptHandlers struct {
	db *sql.DB
}

func NewPromptHandlers(database *sql.DB) *PromptHandlers {
	return &PromptHandlers{db: database}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case "sync-review":
		return h.getSyncReviewPrompt(request.Params.Arguments)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) getSyncReviewPrompt(args map[string]string) (*mcp.GetPromptResult, error) {
	id, err := parseConnectionID(args["connection_id"])
	if err != nil {
		return nil, err
	}

	conn, err := db.GetConnection(h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch connection: %w", err)
	}
	if conn == nil {
		return nil, fmt.Errorf("connection not found: %s", id)
	}

	projectName := conn.ProjectID.String()
	if project, err := db.GetProject(h.db, conn.ProjectID); err == nil && project != nil {
		projectName = project.Name
	}

	runs, err := db.ListSyncRuns(h.db, id, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sync runs: %w", err)
	}

	entries, err := db.FindLedgerByConnection(h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Please review the health of this task-board sync connection:\n\n")
	promptText.WriteString(fmt.Sprintf("Project: %s\n", projectName))
	promptText.WriteString(fmt.Sprintf("Plan: %s\n", conn.ExternalPlanID))
	promptText.WriteString(fmt.Sprintf("Direction: %s\n", conn.SyncDirection))
	promptText.WriteString(fmt.Sprintf("Enabled: %t\n", conn.SyncEnabled))

	var failedImports []models.LedgerEntry
	deleted := 0
	for _, e := range entries {
		switch e.Status {
		case models.LedgerImportFailed:
			failedImports = append(failedImports, e)
		case models.LedgerDeletedRemote:
			deleted++
		}
	}
	promptText.WriteString(fmt.Sprintf("Linked tasks: %d (%d deleted on the board)\n", len(entries)-len(failedImports), deleted))

	if len(failedImports) > 0 {
		promptText.WriteString(fmt.Sprintf("\nFailed imports (%d):\n", len(failedImports)))
		for _, e := range failedImports {
			promptText.WriteString(fmt.Sprintf("- task %s: %s\n", e.ExternalTaskID, e.ErrorText))
		}
	}

	if len(runs) > 0 {
		promptText.WriteString("\nRecent runs (newest first):\n")
		for _, run := range runs {
			s := run.Summary
			promptText.WriteString(fmt.Sprintf("- %s %s: created %d, updated %d, inbound %d, imported %d, errors %d\n",
				run.StartedAt.Format("2006-01-02 15:04"), run.Status,
				s.Created, s.Updated, s.InboundUpdated, s.TasksImported, len(s.Errors)))
			if run.FatalError != "" {
				promptText.WriteString(fmt.Sprintf("  fatal: %s\n", run.FatalError))
			}
			for _, e := range s.Errors {
				promptText.WriteString(fmt.Sprintf("  error: %s\n", e))
			}
		}
	} else {
		promptText.WriteString("\nThis connection has never been synced.\n")
	}

	promptText.WriteString("\nPlease analyze this connection and provide:")
	promptText.WriteString("\n1. Whether the sync is healthy")
	promptText.WriteString("\n2. The likely cause of any recurring errors")
	promptText.WriteString("\n3. Concrete steps to fix failed imports or missing identities")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Sync review for %s", projectName),
		Messages: []*mcp.PromptMessage{
			{
				Role: "user",
				Content: &mcp.TextContent{
					Text: promptText.String(),
				},
			},
		},
	}, nil
}
