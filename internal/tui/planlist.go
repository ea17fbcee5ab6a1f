package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/reprocess/internal/dashboard"
	"github.com/fentz26/reprocess/internal/models"
)

var planColumns = []table.Column{
	{Title: "ID", Width: 6},
	{Title: "Name", Width: 28},
	{Title: "Status", Width: 12},
	{Title: "Conc", Width: 5},
	{Title: "Created by", Width: 12},
	{Title: "Created", Width: 20},
}

// PlanListModel shows every plan and keeps it current through a list scope.
type PlanListModel struct {
	scope *dashboard.ListScope
	table table.Model
}

// NewPlanListModel wraps scope in a table view.
func NewPlanListModel(scope *dashboard.ListScope) *PlanListModel {
	t := table.New(
		table.WithColumns(planColumns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(cyanColor)
	styles.Selected = styles.Selected.Foreground(fgColor).Background(primaryColor).Bold(true)
	t.SetStyles(styles)

	return &PlanListModel{scope: scope, table: t}
}

// Scope returns the underlying list scope.
func (m *PlanListModel) Scope() *dashboard.ListScope { return m.scope }

// SetSize sets the table dimensions.
func (m *PlanListModel) SetSize(w, h int) {
	m.table.SetWidth(w)
	m.table.SetHeight(max(h, 3))
}

// Open subscribes the scope and returns the initial fetch.
func (m *PlanListModel) Open(ctx context.Context) tea.Cmd {
	return tea.Batch(listFetchCmd(m.scope.Open(ctx)), waitForLive(m.scope.ID(), m.scope.Messages()))
}

// Refresh returns a sequence-tagged fetch.
func (m *PlanListModel) Refresh(ctx context.Context) tea.Cmd {
	return listFetchCmd(m.scope.Fetch(ctx))
}

// Apply installs a fetch result and rebuilds the rows.
func (m *PlanListModel) Apply(r dashboard.ListResult) bool {
	if !m.scope.Apply(r) {
		return false
	}
	m.syncRows()
	return true
}

// Select moves the cursor to the plan with id, if listed.
func (m *PlanListModel) Select(id int64) {
	for i, p := range m.scope.Plans() {
		if p.ID == id {
			m.table.SetCursor(i)
			return
		}
	}
}

// Selected returns the plan under the cursor.
func (m *PlanListModel) Selected() (models.Plan, bool) {
	plans := m.scope.Plans()
	i := m.table.Cursor()
	if i < 0 || i >= len(plans) {
		return models.Plan{}, false
	}
	return plans[i], true
}

// Update forwards navigation keys to the table.
func (m *PlanListModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return cmd
}

func (m *PlanListModel) syncRows() {
	plans := m.scope.Plans()
	rows := make([]table.Row, len(plans))
	for i, p := range plans {
		created := ""
		if !p.CreatedAt.IsZero() {
			created = p.CreatedAt.Local().Format("2006-01-02 15:04:05")
		}
		rows[i] = table.Row{
			strconv.FormatInt(p.ID, 10),
			p.Name,
			string(p.Status),
			strconv.Itoa(p.MaxConcurrency),
			p.CreatedBy,
			created,
		}
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

// View renders the list.
func (m *PlanListModel) View() string {
	if err := m.scope.Err(); err != nil {
		return errorStyle.Render("Error: "+err.Error()) + "\n"
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Plans (%d)", len(m.scope.Plans()))) + "\n")
	if !m.scope.Loaded() {
		return b.String() + "\n  Loading plans...\n"
	}
	if len(m.scope.Plans()) == 0 {
		b.WriteString("\n  No plans yet. Press n to compose one.\n")
		return b.String()
	}

	b.WriteString(m.table.View())
	if p, ok := m.Selected(); ok {
		b.WriteString("\n" + lipgloss.JoinHorizontal(lipgloss.Top,
			"  ", formatPlanStatus(p.Status), "  ", mutedStyle.Render(p.TargetAddress)))
	}
	return b.String()
}

func listFetchCmd(fetch func() dashboard.ListResult) tea.Cmd {
	return func() tea.Msg {
		return listResultMsg{result: fetch()}
	}
}
