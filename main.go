// ABOUTME: Entry point for the plansync CLI, MCP server and dashboard
// ABOUTME: Routes to sync commands, MCP server or TUI based on arguments
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/harperreed/plansync/cli"
	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/sync"
	"github.com/harperreed/plansync/tui"
	"github.com/joho/godotenv"
)

const version = "0.1.0"

func main() {
	// Credentials may come from a local .env
	_ = godotenv.Load()

	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/plansync/plansync.db)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	// Handle version flag
	if *showVersion {
		fmt.Printf("plansync version %s\n", version)
		os.Exit(0)
	}

	if *initOnly {
		database := openDatabase(*dbPath)
		defer database.Close()
		log.Println("Database initialized successfully")
		os.Exit(0)
	}

	// Get remaining args after flags
	args := flag.Args()

	// If no command specified, show usage
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	// Route to top-level command
	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "mcp":
		database := openDatabase(*dbPath)
		defer database.Close()

		if err := cli.MCPCommand(database, version); err != nil {
			log.Fatalf("MCP server failed: %v", err)
		}

	case "tui":
		database := openDatabase(*dbPath)
		defer database.Close()

		if err := runTUI(database); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "sync":
		if len(commandArgs) == 0 {
			fmt.Println("Error: sync requires a subcommand")
			printUsage()
			os.Exit(1)
		}

		syncCommand := commandArgs[0]
		syncArgs := commandArgs[1:]

		// init only writes config and needs no database
		if syncCommand == "init" {
			if err := cli.SyncInitCommand(syncArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
			return
		}

		database := openDatabase(*dbPath)
		defer database.Close()

		var err error
		switch syncCommand {
		case "connect":
			err = cli.SyncConnectCommand(database, syncArgs)
		case "disconnect":
			err = cli.SyncDisconnectCommand(database, syncArgs)
		case "enable":
			err = cli.SyncEnableCommand(database, syncArgs, true)
		case "disable":
			err = cli.SyncEnableCommand(database, syncArgs, false)
		case "run":
			err = cli.SyncRunCommand(database, syncArgs)
		case "status":
			err = cli.SyncStatusCommand(database, syncArgs)
		case "daemon":
			err = cli.SyncDaemonCommand(database, syncArgs)
		default:
			fmt.Printf("Unknown sync command: %s\n\n", syncCommand)
			printUsage()
			os.Exit(1)
		}
		if err != nil {
			log.Fatalf("Error: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func openDatabase(dbPath string) *sql.DB {
	database, err := db.OpenDatabase(getDatabasePath(dbPath))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return database
}

// getDatabasePath prefers the flag, then the configured path
func getDatabasePath(dbPath string) string {
	if dbPath != "" {
		return dbPath
	}
	cfg, err := sync.LoadConfig()
	if err != nil {
		return sync.DefaultDatabasePath()
	}
	return cfg.DatabasePath
}

// runTUI starts the dashboard, read-only when credentials are missing
func runTUI(database *sql.DB) error {
	cfg, err := sync.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Engine logs would draw over the alt screen
	logger := charmlog.New(os.Stderr)
	logger.SetLevel(charmlog.FatalLevel)

	var runner tui.Runner
	if graphRunner, err := sync.NewGraphRunner(context.Background(), database, cfg, logger); err == nil {
		runner = graphRunner
	}

	return tui.Run(database, runner)
}

func printUsage() {
	fmt.Printf(`plansync v%s - Staffing allocation ↔ task board sync

USAGE:
  plansync [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/plansync/plansync.db)
  --init                 Initialize database and exit

COMMANDS:
  sync                   Configure connections and run syncs
  mcp                    Start MCP server
  tui                    Open the connection dashboard

SYNC COMMANDS:
  plansync sync init        Store the app registration credentials
    --fallback-role <name>    Role used to price imported tasks
    --app-url <url>           Base URL for allocation links in task notes
    --auto-create-people      Create placeholder people for unknown assignees

  plansync sync connect     Link a project to a plan
    --project <name|id>       Project name or ID (required, created if new)
    --plan <id>               Plan ID (required)
    --group <id>              Group that owns the plan
    --direction <dir>         outbound, inbound or bidirectional (default)
    --auto-add                Add resolved assignees to the group
    --disabled                Create with sync turned off

  plansync sync disconnect  Remove a connection and its sync history
    --connection <id>         Connection ID (required)

  plansync sync enable      Turn sync on for a connection
  plansync sync disable     Turn sync off for a connection
    --connection <id>         Connection ID (required)

  plansync sync run         Run one reconciliation
    --connection <id>         Connection ID (omit to run every enabled connection)

  plansync sync status      Show credentials, connections and run history
    --connection <id>         Show recent runs for one connection
    --limit <n>               Runs to show (default: 5)

  plansync sync daemon      Sync every enabled connection on a schedule
    --interval <duration>     Time between passes (default: 15m, minimum: 5m)

ENVIRONMENT:
  PLANSYNC_TENANT_ID, PLANSYNC_CLIENT_ID, PLANSYNC_CLIENT_SECRET
  PLANSYNC_APP_BASE_URL, PLANSYNC_FALLBACK_ROLE, PLANSYNC_AUTO_CREATE_PEOPLE
  PLANSYNC_DEFAULT_HOURS, PLANSYNC_GRAPH_BASE_URL
  A .env file in the working directory is loaded first.

EXAMPLES:
  # Store credentials
  plansync sync init --fallback-role Consultant --app-url https://staffing.example.com

  # Connect a project to a plan
  plansync sync connect --project "Website Rebuild" --plan xqQg5FS2LkCp935s-FIFm2QAFkHM --group 8f2b...

  # Sync it now
  plansync sync run --connection <id>

  # Keep everything in sync every 30 minutes
  plansync sync daemon --interval 30m

  # Start MCP server
  plansync mcp

`, version)
}
