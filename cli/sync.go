// ABOUTME: Task-board sync CLI commands
// ABOUTME: Handles credential setup, connections, one-shot runs and status reporting
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
	"github.com/harperreed/plansync/sync"
	"golang.org/x/term"
)

// SyncInitCommand stores the app registration used to reach the task board
func SyncInitCommand(args []string) error {
	fs := flag.NewFlagSet("sync init", flag.ExitOnError)
	fallbackRole := fs.String("fallback-role", "", "Role used to price imported tasks")
	appURL := fs.String("app-url", "", "Base URL for allocation links written into task notes")
	autoCreate := fs.Bool("auto-create-people", false, "Create placeholder people for unknown assignees")
	_ = fs.Parse(args)

	cfg, err := sync.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)

	tenantID, err := prompt(reader, "Tenant ID", cfg.TenantID)
	if err != nil {
		return fmt.Errorf("failed to read tenant ID: %w", err)
	}
	cfg.TenantID = tenantID

	clientID, err := prompt(reader, "Client ID", cfg.ClientID)
	if err != nil {
		return fmt.Errorf("failed to read client ID: %w", err)
	}
	cfg.ClientID = clientID

	// Secret is read without echo
	fmt.Print("Client secret: ")
	secret, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read client secret: %w", err)
	}
	fmt.Println()
	if trimmed := strings.TrimSpace(string(secret)); trimmed != "" {
		cfg.ClientSecret = trimmed
	}
	if !cfg.HasCredentials() {
		return fmt.Errorf("tenant ID, client ID and client secret are all required")
	}

	if *fallbackRole != "" {
		cfg.FallbackRole = *fallbackRole
	}
	if *appURL != "" {
		cfg.AppBaseURL = strings.TrimRight(*appURL, "/")
	}
	if *autoCreate {
		cfg.AutoCreatePeople = true
	}

	if err := sync.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("\n✓ Credentials saved to %s\n", sync.ConfigPath())
	fmt.Println("\nNext step: Run 'plansync sync connect --project <name> --plan <plan-id>'")

	return nil
}

// prompt reads one line, keeping the current value when the answer is empty
func prompt(reader *bufio.Reader, label, current string) (string, error) {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	if answer := strings.TrimSpace(line); answer != "" {
		return answer, nil
	}
	return current, nil
}

// SyncConnectCommand links a project to an external plan
func SyncConnectCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync connect", flag.ExitOnError)
	projectRef := fs.String("project", "", "Project name or ID (created if the name is new)")
	planID := fs.String("plan", "", "External plan ID")
	groupID := fs.String("group", "", "External group that owns the plan")
	direction := fs.String("direction", models.DirectionBidirectional, "Sync direction: outbound, inbound or bidirectional")
	autoAdd := fs.Bool("auto-add", false, "Add resolved assignees to the group")
	disabled := fs.Bool("disabled", false, "Create the connection with sync turned off")
	_ = fs.Parse(args)

	if *projectRef == "" || *planID == "" {
		return fmt.Errorf("--project and --plan are required")
	}

	switch *direction {
	case models.DirectionOutbound, models.DirectionInbound, models.DirectionBidirectional:
	default:
		return fmt.Errorf("invalid direction %q (must be outbound, inbound or bidirectional)", *direction)
	}

	project, created, err := resolveProject(database, *projectRef)
	if err != nil {
		return err
	}

	conn := &models.Connection{
		ProjectID:       project.ID,
		ExternalPlanID:  strings.TrimSpace(*planID),
		ExternalGroupID: strings.TrimSpace(*groupID),
		SyncEnabled:     !*disabled,
		SyncDirection:   *direction,
		AutoAddMembers:  *autoAdd,
	}
	if err := db.CreateConnection(database, conn); err != nil {
		return err
	}

	if created {
		fmt.Printf("✓ Created project: %s (ID: %s)\n", project.Name, project.ID)
	}
	fmt.Printf("✓ Connected %s to plan %s\n", project.Name, conn.ExternalPlanID)
	fmt.Printf("  Connection ID: %s\n", conn.ID)
	fmt.Printf("  Direction:     %s\n", conn.SyncDirection)
	if !conn.SyncEnabled {
		fmt.Println("  Sync:          disabled")
	}
	fmt.Printf("\nNext step: Run 'plansync sync run --connection %s'\n", conn.ID)

	return nil
}

// resolveProject looks a project up by ID or name, creating it when a new name is given
func resolveProject(database *sql.DB, ref string) (*models.Project, bool, error) {
	if id, err := uuid.Parse(ref); err == nil {
		project, err := db.GetProject(database, id)
		if err != nil {
			return nil, false, fmt.Errorf("failed to get project: %w", err)
		}
		if project == nil {
			return nil, false, fmt.Errorf("project not found: %s", ref)
		}
		return project, false, nil
	}

	project, err := db.FindProjectByName(database, ref)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find project: %w", err)
	}
	if project != nil {
		return project, false, nil
	}

	project = &models.Project{Name: strings.TrimSpace(ref)}
	if err := db.CreateProject(database, project); err != nil {
		return nil, false, fmt.Errorf("failed to create project: %w", err)
	}
	return project, true, nil
}

// SyncDisconnectCommand removes a connection with its ledger and run history
func SyncDisconnectCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync disconnect", flag.ExitOnError)
	connRef := fs.String("connection", "", "Connection ID")
	_ = fs.Parse(args)

	conn, err := loadConnection(database, *connRef)
	if err != nil {
		return err
	}

	if err := db.DeleteConnection(database, conn.ID); err != nil {
		return err
	}

	fmt.Printf("✓ Disconnected plan %s\n", conn.ExternalPlanID)
	fmt.Println("  Tasks on the board and allocations are left untouched.")

	return nil
}

// SyncEnableCommand turns scheduled and manual sync on or off for a connection
func SyncEnableCommand(database *sql.DB, args []string, enabled bool) error {
	name := "sync enable"
	if !enabled {
		name = "sync disable"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	connRef := fs.String("connection", "", "Connection ID")
	_ = fs.Parse(args)

	conn, err := loadConnection(database, *connRef)
	if err != nil {
		return err
	}

	if err := db.SetConnectionEnabled(database, conn.ID, enabled); err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}

	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	fmt.Printf("✓ Sync %s for plan %s\n", state, conn.ExternalPlanID)

	return nil
}

// SyncRunCommand runs one reconciliation for a connection, or for every enabled one
func SyncRunCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync run", flag.ExitOnError)
	connRef := fs.String("connection", "", "Connection ID (omit to run every enabled connection)")
	_ = fs.Parse(args)

	cfg, err := sync.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	runner, err := sync.NewGraphRunner(ctx, database, cfg, log.Default().WithPrefix(sync.AppName))
	if err != nil {
		return err
	}

	if *connRef == "" {
		results, err := runner.RunEnabled(ctx)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No enabled connections. Run 'plansync sync connect' first.")
			return nil
		}

		failed := 0
		for _, res := range results {
			fmt.Printf("\nConnection %s\n", res.ConnectionID)
			if res.Err != nil {
				failed++
				fmt.Printf("  ✗ %v\n", res.Err)
				continue
			}
			printSummary(res.Summary)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d connections failed", failed, len(results))
		}
		return nil
	}

	id, err := uuid.Parse(*connRef)
	if err != nil {
		return fmt.Errorf("invalid connection ID: %w", err)
	}

	fmt.Printf("Syncing connection %s...\n", id)
	summary, err := runner.Run(ctx, id)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	printSummary(summary)
	return nil
}

func printSummary(summary *models.RunSummary) {
	fmt.Printf("  ✓ Created:          %d\n", summary.Created)
	fmt.Printf("  ✓ Updated:          %d\n", summary.Updated)
	fmt.Printf("  ✓ Inbound updated:  %d\n", summary.InboundUpdated)
	fmt.Printf("  ✓ Removed remotely: %d\n", summary.InboundDeleted)
	fmt.Printf("  ✓ Imported:         %d\n", summary.TasksImported)
	fmt.Printf("  ✓ Skipped:          %d\n", summary.TasksSkipped)

	if len(summary.Errors) > 0 {
		fmt.Printf("\n  ⚠ %d item errors:\n", len(summary.Errors))
		for _, e := range summary.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
}

// SyncStatusCommand shows configured credentials, connections and recent runs
func SyncStatusCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync status", flag.ExitOnError)
	connRef := fs.String("connection", "", "Show run history for one connection")
	limit := fs.Int("limit", 5, "Number of runs to show")
	_ = fs.Parse(args)

	styles := newStatusStyles(term.IsTerminal(int(os.Stdout.Fd())))

	cfg, err := sync.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(styles.title.Render("Task Board Sync"))
	fmt.Println()
	if cfg.HasCredentials() {
		fmt.Printf("  Configured:   ✓ Yes\n")
		fmt.Printf("  Tenant:       %s\n", cfg.TenantID)
	} else {
		fmt.Printf("  Configured:   ✗ No\n")
		fmt.Println("\nRun 'plansync sync init' to store credentials.")
	}
	if cfg.FallbackRole != "" {
		fmt.Printf("  Import role:  %s\n", cfg.FallbackRole)
	}

	if *connRef != "" {
		conn, err := loadConnection(database, *connRef)
		if err != nil {
			return err
		}
		return printConnectionHistory(database, conn, *limit, styles)
	}

	connections, err := db.ListConnections(database)
	if err != nil {
		return err
	}

	fmt.Println()
	if len(connections) == 0 {
		fmt.Println("No connections. Run 'plansync sync connect' to add one.")
		return nil
	}

	for i := range connections {
		conn := &connections[i]
		projectName := conn.ProjectID.String()
		if project, err := db.GetProject(database, conn.ProjectID); err == nil && project != nil {
			projectName = project.Name
		}

		fmt.Printf("%s → plan %s\n", styles.heading.Render(projectName), conn.ExternalPlanID)
		fmt.Printf("  ID:           %s\n", conn.ID)
		fmt.Printf("  Direction:    %s\n", conn.SyncDirection)
		if conn.SyncEnabled {
			fmt.Printf("  Enabled:      ✓ Yes\n")
		} else {
			fmt.Printf("  Enabled:      ✗ No\n")
		}
		if conn.LastSyncAt != nil {
			fmt.Printf("  Last sync:    %s (%s)\n", formatTimeSince(*conn.LastSyncAt), styles.status(conn.LastSyncStatus))
		} else {
			fmt.Printf("  Last sync:    never\n")
		}
		if conn.LastSyncError != "" {
			fmt.Printf("  Last error:   %s\n", styles.dim.Render(conn.LastSyncError))
		}
		fmt.Println()
	}

	return nil
}

func printConnectionHistory(database *sql.DB, conn *models.Connection, limit int, styles statusStyles) error {
	runs, err := db.ListSyncRuns(database, conn.ID, limit)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(styles.heading.Render(fmt.Sprintf("Recent runs for plan %s", conn.ExternalPlanID)))
	if len(runs) == 0 {
		fmt.Println("  No runs yet.")
		return nil
	}

	for _, run := range runs {
		s := run.Summary
		fmt.Printf("  %s  %-8s  +%d ~%d ←%d ✗%d ⇣%d  errors:%d\n",
			run.StartedAt.Format("2006-01-02 15:04"), styles.status(run.Status),
			s.Created, s.Updated, s.InboundUpdated, s.InboundDeleted, s.TasksImported, len(s.Errors))
		if run.FatalError != "" {
			fmt.Printf("    %s\n", styles.dim.Render(run.FatalError))
		}
	}

	return nil
}

func loadConnection(database *sql.DB, ref string) (*models.Connection, error) {
	if ref == "" {
		return nil, fmt.Errorf("--connection is required")
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid connection ID: %w", err)
	}

	conn, err := db.GetConnection(database, id)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, fmt.Errorf("connection not found: %s", ref)
	}
	return conn, nil
}

type statusStyles struct {
	title   lipgloss.Style
	heading lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	fail    lipgloss.Style
}

// newStatusStyles returns unstyled output when stdout is not a terminal
func newStatusStyles(tty bool) statusStyles {
	if !tty {
		plain := lipgloss.NewStyle()
		return statusStyles{plain, plain, plain, plain, plain, plain}
	}
	return statusStyles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		heading: lipgloss.NewStyle().Bold(true),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func (s statusStyles) status(status string) string {
	switch status {
	case models.RunStatusSuccess:
		return s.ok.Render(status)
	case models.RunStatusPartial:
		return s.warn.Render(status)
	case models.RunStatusFailed:
		return s.fail.Render(status)
	default:
		return status
	}
}
