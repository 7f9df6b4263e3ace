package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
)

func (m Model) renderListView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("PLANSYNC"))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	if len(m.connections) == 0 {
		s.WriteString(syncMessageStyle.Render("No connections. Run 'plansync sync connect' to add one."))
		s.WriteString("\n\n")
	} else {
		s.WriteString(m.renderConnectionsTable())
		s.WriteString("\n\n")
	}

	s.WriteString(m.renderSyncMessages())

	// Help
	s.WriteString(m.renderListHelp())

	return s.String()
}

func (m Model) renderConnectionsTable() string {
	columns := []table.Column{
		{Title: "Project", Width: 24},
		{Title: "Plan", Width: 20},
		{Title: "Direction", Width: 13},
		{Title: "Enabled", Width: 7},
		{Title: "Last Sync", Width: 16},
		{Title: "Status", Width: 12},
	}

	var rows []table.Row
	for _, conn := range m.connections {
		rows = append(rows, table.Row{
			m.projectNames[conn.ProjectID],
			conn.ExternalPlanID,
			conn.SyncDirection,
			yesNo(conn.SyncEnabled),
			lastSyncLabel(&conn),
			m.statusLabel(&conn),
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(max(m.height-12, 3)),
	)

	// Set selected row
	if m.selectedRow < len(rows) {
		t.SetCursor(m.selectedRow)
	}

	return t.View()
}

func (m Model) statusLabel(conn *models.Connection) string {
	if m.syncInProgress[conn.ID] {
		return "⟳ syncing"
	}
	switch conn.LastSyncStatus {
	case models.RunStatusSuccess:
		return "✓ success"
	case models.RunStatusPartial:
		return "⚠ partial"
	case models.RunStatusFailed:
		return "✗ failed"
	}
	return "-"
}

func lastSyncLabel(conn *models.Connection) string {
	if conn.LastSyncAt == nil {
		return "never"
	}
	return formatTimeSince(*conn.LastSyncAt)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (m Model) renderListHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"Enter: View runs",
		"s: Sync selected",
		"a: Sync all enabled",
		"e: Enable/disable",
		"r: Refresh",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < len(m.connections)-1 {
			m.selectedRow++
		}
	case "enter":
		if conn := m.selectedConnection(); conn != nil {
			m.selectedID = conn.ID
			m.viewMode = ViewDetail
		}
	case "s":
		if conn := m.selectedConnection(); conn != nil {
			return m, m.startSync(*conn)
		}
	case "a":
		var cmds []tea.Cmd
		for _, conn := range m.connections {
			if conn.SyncEnabled {
				cmds = append(cmds, m.startSync(conn))
			}
		}
		return m, tea.Batch(cmds...)
	case "e":
		if conn := m.selectedConnection(); conn != nil {
			if err := db.SetConnectionEnabled(m.db, conn.ID, !conn.SyncEnabled); err != nil {
				m.addSyncMessage(fmt.Sprintf("✗ Failed to update %s: %v", conn.ExternalPlanID, err))
			}
			m.loadConnections()
		}
	case "r":
		m.loadConnections()
	}

	return m, nil
}
