// ABOUTME: TUI sync triggering and activity log
// ABOUTME: Runs connections in the background and reports their outcome
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/harperreed/plansync/models"
)

var (
	syncHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	syncMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)
)

// SyncCompleteMsg is sent when a sync operation completes.
type SyncCompleteMsg struct {
	ConnectionID uuid.UUID
	PlanID       string
	Summary      *models.RunSummary
	Skipped      bool
	Error        error
}

// startSync marks a connection as syncing and returns the command that runs it.
func (m *Model) startSync(conn models.Connection) tea.Cmd {
	if m.runner == nil {
		m.addSyncMessage("✗ Sync is not configured. Run 'plansync sync init' first.")
		return nil
	}
	if m.syncInProgress[conn.ID] {
		m.addSyncMessage(fmt.Sprintf("Sync for %s is already running", conn.ExternalPlanID))
		return nil
	}

	m.syncInProgress[conn.ID] = true
	m.addSyncMessage(fmt.Sprintf("Starting sync for %s...", conn.ExternalPlanID))
	return m.syncConnection(conn.ID, conn.ExternalPlanID)
}

// syncConnection runs one connection off the UI goroutine.
func (m Model) syncConnection(id uuid.UUID, planID string) tea.Cmd {
	runner := m.runner
	return func() tea.Msg {
		summary, ran, err := runner.TryRun(context.Background(), id)
		return SyncCompleteMsg{
			ConnectionID: id,
			PlanID:       planID,
			Summary:      summary,
			Skipped:      !ran && err == nil,
			Error:        err,
		}
	}
}

// handleSyncComplete handles sync completion messages.
func (m *Model) handleSyncComplete(msg SyncCompleteMsg) tea.Cmd {
	m.syncInProgress[msg.ConnectionID] = false

	switch {
	case msg.Error != nil:
		m.addSyncMessage(fmt.Sprintf("✗ %s sync failed: %v", msg.PlanID, msg.Error))
	case msg.Skipped:
		m.addSyncMessage(fmt.Sprintf("%s is already syncing elsewhere", msg.PlanID))
	case len(msg.Summary.Errors) > 0:
		m.addSyncMessage(fmt.Sprintf("⚠ %s synced with %d errors (created %d, updated %d, imported %d)",
			msg.PlanID, len(msg.Summary.Errors), msg.Summary.Created, msg.Summary.Updated, msg.Summary.TasksImported))
	default:
		m.addSyncMessage(fmt.Sprintf("✓ %s synced (created %d, updated %d, imported %d)",
			msg.PlanID, msg.Summary.Created, msg.Summary.Updated, msg.Summary.TasksImported))
	}

	m.loadConnections()
	return nil
}

// addSyncMessage adds a message to the sync message log.
func (m *Model) addSyncMessage(msg string) {
	timestamp := time.Now().Format("15:04:05")
	m.syncMessages = append(m.syncMessages, fmt.Sprintf("[%s] %s", timestamp, msg))
}

func (m Model) renderSyncMessages() string {
	if len(m.syncMessages) == 0 {
		return ""
	}

	var s strings.Builder
	s.WriteString(syncHeaderStyle.Render("Recent Activity"))
	s.WriteString("\n\n")

	// Show last 5 messages
	start := 0
	if len(m.syncMessages) > 5 {
		start = len(m.syncMessages) - 5
	}
	for i := start; i < len(m.syncMessages); i++ {
		s.WriteString(syncMessageStyle.Render("  " + m.syncMessages[i]))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	return s.String()
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
