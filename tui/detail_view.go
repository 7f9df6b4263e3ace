package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
)

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(20)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))
)

func (m Model) renderDetailView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("CONNECTION"))
	s.WriteString("\n\n")

	s.WriteString(m.renderConnectionDetail())
	s.WriteString("\n")

	s.WriteString(m.renderSyncMessages())

	// Help
	s.WriteString(m.renderDetailHelp())

	return s.String()
}

func (m Model) renderConnectionDetail() string {
	conn, err := db.GetConnection(m.db, m.selectedID)
	if err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", err))
	}
	if conn == nil {
		return errorStyle.Render("Connection no longer exists")
	}

	var s strings.Builder

	s.WriteString(m.renderField("Project", m.projectNames[conn.ProjectID]))
	s.WriteString(m.renderField("Plan", conn.ExternalPlanID))
	s.WriteString(m.renderField("Group", conn.ExternalGroupID))
	s.WriteString(m.renderField("Direction", conn.SyncDirection))
	s.WriteString(m.renderField("Enabled", yesNo(conn.SyncEnabled)))
	s.WriteString(m.renderField("Auto-add members", yesNo(conn.AutoAddMembers)))
	s.WriteString(m.renderField("Last sync", lastSyncLabel(conn)))
	s.WriteString(m.renderField("Last error", conn.LastSyncError))

	// Ledger counts
	entries, err := db.FindLedgerByConnection(m.db, conn.ID)
	if err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error loading ledger: %v", err)))
		s.WriteString("\n")
	} else {
		counts := make(map[string]int)
		for _, e := range entries {
			counts[e.Status]++
		}
		s.WriteString(m.renderField("Linked tasks", fmt.Sprintf("%d", counts[models.LedgerSynced])))
		s.WriteString(m.renderField("Deleted on board", fmt.Sprintf("%d", counts[models.LedgerDeletedRemote])))
		s.WriteString(m.renderField("Failed imports", fmt.Sprintf("%d", counts[models.LedgerImportFailed])))
	}

	s.WriteString("\n")
	s.WriteString(syncHeaderStyle.Render("Recent Runs"))
	s.WriteString("\n\n")
	s.WriteString(m.renderRunsTable(conn))
	s.WriteString("\n")

	return s.String()
}

func (m Model) renderRunsTable(conn *models.Connection) string {
	runs, err := db.ListSyncRuns(m.db, conn.ID, 10)
	if err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", err))
	}
	if len(runs) == 0 {
		return syncMessageStyle.Render("No runs yet. Press 's' to sync now.")
	}

	columns := []table.Column{
		{Title: "Started", Width: 16},
		{Title: "Status", Width: 8},
		{Title: "Created", Width: 7},
		{Title: "Updated", Width: 7},
		{Title: "Inbound", Width: 7},
		{Title: "Imported", Width: 8},
		{Title: "Errors", Width: 6},
	}

	var rows []table.Row
	for _, run := range runs {
		s := run.Summary
		rows = append(rows, table.Row{
			run.StartedAt.Format("2006-01-02 15:04"),
			run.Status,
			fmt.Sprintf("%d", s.Created),
			fmt.Sprintf("%d", s.Updated),
			fmt.Sprintf("%d", s.InboundUpdated),
			fmt.Sprintf("%d", s.TasksImported),
			fmt.Sprintf("%d", len(s.Errors)),
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
	)

	return t.View()
}

func (m Model) renderField(label, value string) string {
	if value == "" {
		value = "-"
	}
	return fieldLabelStyle.Render(label+":") + " " + fieldValueStyle.Render(value) + "\n"
}

func (m Model) renderDetailHelp() string {
	help := []string{
		"s: Sync now",
		"e: Enable/disable",
		"Esc: Back",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.viewMode = ViewList
		m.loadConnections()
	case "s":
		conn, err := db.GetConnection(m.db, m.selectedID)
		if err == nil && conn != nil {
			return m, m.startSync(*conn)
		}
	case "e":
		conn, err := db.GetConnection(m.db, m.selectedID)
		if err == nil && conn != nil {
			if err := db.SetConnectionEnabled(m.db, conn.ID, !conn.SyncEnabled); err != nil {
				m.addSyncMessage(fmt.Sprintf("✗ Failed to update %s: %v", conn.ExternalPlanID, err))
			}
		}
	}

	return m, nil
}
