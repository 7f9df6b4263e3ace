// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Provides an interactive dashboard over connections, run history and manual syncs
package tui

import (
	"context"
	"database/sql"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/harperreed/plansync/db"
	"github.com/harperreed/plansync/models"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewDetail
)

// Runner runs one connection unless a run for it is already in flight.
type Runner interface {
	TryRun(ctx context.Context, connectionID uuid.UUID) (*models.RunSummary, bool, error)
}

// Model is the main bubbletea model
type Model struct {
	db       *sql.DB
	runner   Runner
	viewMode ViewMode

	// List view state
	connections  []models.Connection
	projectNames map[uuid.UUID]string
	selectedRow  int

	// Detail view state
	selectedID uuid.UUID

	// Sync state
	syncInProgress map[uuid.UUID]bool
	syncMessages   []string

	// UI state
	width  int
	height int
	err    error
}

// NewModel creates a new TUI model. A nil runner keeps the dashboard read-only.
func NewModel(database *sql.DB, runner Runner) Model {
	m := Model{
		db:             database,
		runner:         runner,
		viewMode:       ViewList,
		projectNames:   make(map[uuid.UUID]string),
		syncInProgress: make(map[uuid.UUID]bool),
		width:          80,
		height:         24,
	}
	m.loadConnections()
	return m
}

// Run starts the full-screen dashboard
func Run(database *sql.DB, runner Runner) error {
	p := tea.NewProgram(NewModel(database, runner), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case SyncCompleteMsg:
		return m, m.handleSyncComplete(msg)
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewList:
		return m.renderListView()
	case ViewDetail:
		return m.renderDetailView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}

	// Delegate to view-specific handlers
	switch m.viewMode {
	case ViewList:
		return m.handleListKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	}

	return m, nil
}

// loadConnections refreshes the connection list and project names
func (m *Model) loadConnections() {
	connections, err := db.ListConnections(m.db)
	if err != nil {
		m.err = err
		m.connections = nil
		return
	}

	m.err = nil
	m.connections = connections
	for _, conn := range connections {
		if _, ok := m.projectNames[conn.ProjectID]; ok {
			continue
		}
		name := conn.ProjectID.String()
		if project, err := db.GetProject(m.db, conn.ProjectID); err == nil && project != nil {
			name = project.Name
		}
		m.projectNames[conn.ProjectID] = name
	}

	if m.selectedRow >= len(m.connections) {
		m.selectedRow = max(len(m.connections)-1, 0)
	}
}

func (m Model) selectedConnection() *models.Connection {
	if m.selectedRow < 0 || m.selectedRow >= len(m.connections) {
		return nil
	}
	return &m.connections[m.selectedRow]
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)
