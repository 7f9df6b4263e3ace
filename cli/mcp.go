// ABOUTME: MCP server subcommand
// ABOUTME: Starts the MCP server exposing sync tools, resources and prompts on stdio
package cli

import (
	"context"
	"database/sql"

	"github.com/charmbracelet/log"
	"github.com/harperreed/plansync/handlers"
	"github.com/harperreed/plansync/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPCommand starts the MCP server on stdio
func MCPCommand(database *sql.DB, version string) error {
	ctx := context.Background()
	logger := log.Default().WithPrefix(sync.AppName)
	logger.Info("starting MCP server")

	cfg, err := sync.LoadConfig()
	if err != nil {
		return err
	}

	// Read-only tools still work without credentials
	var runner handlers.SyncRunner
	if graphRunner, err := sync.NewGraphRunner(ctx, database, cfg, logger); err != nil {
		logger.Warn("run_sync disabled", "err", err)
	} else {
		runner = graphRunner
	}

	server := newMCPServer(database, runner, version)
	return server.Run(ctx, &mcp.StdioTransport{})
}

func newMCPServer(database *sql.DB, runner handlers.SyncRunner, version string) *mcp.Server {
	syncHandlers := handlers.NewSyncHandlers(database, runner)
	resourceHandlers := handlers.NewResourceHandlers(database)
	promptHandlers := handlers.NewPromptHandlers(database)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    sync.AppName,
		Version: version,
	}, nil)

	// Register tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_sync",
		Description: "Run one reconciliation between a project's allocations and its connected task board plan",
	}, syncHandlers.RunSync)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_connections",
		Description: "List project to plan connections with their last sync outcome",
	}, syncHandlers.ListConnections)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_sync_status",
		Description: "Show ledger counts and recent run history for a connection",
	}, syncHandlers.GetSyncStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_sync_enabled",
		Description: "Turn sync on or off for a connection",
	}, syncHandlers.SetSyncEnabled)

	// Register resources
	server.AddResource(&mcp.Resource{
		URI:         "plansync://connections",
		Name:        "connections",
		Description: "All project to plan connections",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "plansync://connections/{id}",
		Name:        "connection",
		Description: "One connection with its sync ledger",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "plansync://connections/{id}/runs",
		Name:        "connection-runs",
		Description: "Recent sync runs for a connection",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	// Register prompts
	server.AddPrompt(&mcp.Prompt{
		Name:        "sync-review",
		Description: "Review the health of a connection from its recent runs and failed imports",
		Arguments: []*mcp.PromptArgument{
			{Name: "connection_id", Description: "Connection ID", Required: true},
		},
	}, promptHandlers.GetPrompt)

	return server
}
