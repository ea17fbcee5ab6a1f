package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/reprocess/internal/dashboard"
	"github.com/fentz26/reprocess/internal/models"
)

var taskColumns = []table.Column{
	{Title: "ID", Width: 6},
	{Title: "Name", Width: 22},
	{Title: "Type", Width: 11},
	{Title: "Job ID", Width: 30},
	{Title: "Status", Width: 12},
	{Title: "Try", Width: 4},
	{Title: "Exit", Width: 5},
}

// planKeys maps detail-view keys to plan actions.
var planKeys = map[string]models.PlanAction{
	"s": models.PlanActionStart,
	"p": models.PlanActionPause,
	"u": models.PlanActionResume,
	"x": models.PlanActionStop,
}

// taskKeys maps detail-view keys to actions on the selected task.
var taskKeys = map[string]models.TaskAction{
	"R": models.TaskActionRetry,
	"c": models.TaskActionCancel,
}

// DetailModel shows one plan, its tasks and recent output, and runs actions
// against it.
type DetailModel struct {
	scope      *dashboard.DetailScope
	dispatcher *dashboard.Dispatcher

	table    table.Model
	logs     viewport.Model
	progress progress.Model

	jobInfo string
	message string
}

// NewDetailModel wraps a detail scope and its dispatcher.
func NewDetailModel(scope *dashboard.DetailScope, d *dashboard.Dispatcher) *DetailModel {
	t := table.New(
		table.WithColumns(taskColumns),
		table.WithFocused(true),
		table.WithHeight(6),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(cyanColor)
	styles.Selected = styles.Selected.Foreground(fgColor).Background(primaryColor).Bold(true)
	t.SetStyles(styles)

	return &DetailModel{
		scope:      scope,
		dispatcher: d,
		table:      t,
		logs:       viewport.New(80, 8),
		progress:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// Scope returns the underlying detail scope.
func (m *DetailModel) Scope() *dashboard.DetailScope { return m.scope }

// SetSize divides the space between the task table and the log pane.
func (m *DetailModel) SetSize(w, h int) {
	m.table.SetWidth(w)
	tableHeight := max(h/2-3, 3)
	m.table.SetHeight(tableHeight)
	m.logs.Width = w
	m.logs.Height = max(h-tableHeight-6, 3)
	m.progress.Width = min(max(w-20, 10), 60)
}

// Open subscribes the scope and returns the initial fetch.
func (m *DetailModel) Open(ctx context.Context) tea.Cmd {
	return tea.Batch(detailFetchCmd(m.scope.Open(ctx)), waitForLive(m.scope.ID(), m.scope.Messages()))
}

// Refresh returns a sequence-tagged fetch.
func (m *DetailModel) Refresh(ctx context.Context) tea.Cmd {
	return detailFetchCmd(m.scope.Fetch(ctx))
}

// Apply installs a fetch result.
func (m *DetailModel) Apply(r dashboard.DetailResult) bool {
	if !m.scope.Apply(r) {
		return false
	}
	m.syncRows()
	return true
}

// SelectedTask returns the task under the cursor.
func (m *DetailModel) SelectedTask() (models.Task, bool) {
	d := m.scope.Detail()
	if d == nil {
		return models.Task{}, false
	}
	i := m.table.Cursor()
	if i < 0 || i >= len(d.Tasks) {
		return models.Task{}, false
	}
	return d.Tasks[i], true
}

// Message returns the last action feedback.
func (m *DetailModel) Message() string { return m.message }

// Update handles action keys and forwards the rest to the table.
func (m *DetailModel) Update(ctx context.Context, msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		if action, ok := planKeys[key]; ok {
			return m.startPlanAction(ctx, action)
		}
		if action, ok := taskKeys[key]; ok {
			task, ok := m.SelectedTask()
			if !ok {
				m.message = "No task selected"
				return nil
			}
			return m.startTaskAction(ctx, task.ID, action)
		}
		switch key {
		case "i":
			task, ok := m.SelectedTask()
			if !ok {
				m.message = "No task selected"
				return nil
			}
			return m.lookupJob(ctx, task.JobID)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.logs, cmd = m.logs.Update(msg)
			return cmd
		}

	case actionResultMsg:
		refetch := m.dispatcher.Finish(ctx, msg.result)
		switch {
		case msg.result.Err != nil:
			m.message = "Error: " + msg.result.Err.Error()
		case refetch != nil:
			m.message = fmt.Sprintf("✓ %s confirmed", msg.result.Action)
		}
		if refetch == nil {
			return nil
		}
		return detailFetchCmd(refetch)

	case jobInfoMsg:
		if msg.err != nil {
			m.jobInfo = errorStyle.Render(fmt.Sprintf("Job %s: %s", msg.jobID, msg.err.Error()))
		} else {
			m.jobInfo = formatJobInfo(msg.jobID, msg.info)
		}
		m.syncLogs()
		return nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	m.syncLogs()
	return cmd
}

func (m *DetailModel) startPlanAction(ctx context.Context, action models.PlanAction) tea.Cmd {
	run, err := m.dispatcher.StartPlanAction(ctx, action)
	if err != nil {
		m.message = "Error: " + err.Error()
		return nil
	}
	m.message = fmt.Sprintf("%s...", action)
	return func() tea.Msg { return actionResultMsg{result: run()} }
}

func (m *DetailModel) startTaskAction(ctx context.Context, taskID int64, action models.TaskAction) tea.Cmd {
	run, err := m.dispatcher.StartTaskAction(ctx, taskID, action)
	if err != nil {
		m.message = "Error: " + err.Error()
		return nil
	}
	m.message = fmt.Sprintf("%s task %d...", action, taskID)
	return func() tea.Msg { return actionResultMsg{result: run()} }
}

func (m *DetailModel) lookupJob(ctx context.Context, jobID string) tea.Cmd {
	d := m.dispatcher
	return func() tea.Msg {
		info, err := d.JobInfo(ctx, jobID)
		return jobInfoMsg{jobID: jobID, info: info, err: err}
	}
}

func (m *DetailModel) syncRows() {
	d := m.scope.Detail()
	if d == nil {
		m.table.SetRows(nil)
		m.syncLogs()
		return
	}
	rows := make([]table.Row, len(d.Tasks))
	for i, t := range d.Tasks {
		rows[i] = table.Row{
			strconv.FormatInt(t.ID, 10),
			t.Name,
			string(t.Type),
			t.JobID,
			formatTaskStatus(t.Status),
			strconv.Itoa(t.Attempt),
			dashboard.ExitCodeText(t.ExitCode),
		}
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
	m.syncLogs()
}

func (m *DetailModel) syncLogs() {
	var b strings.Builder
	if m.jobInfo != "" {
		b.WriteString(m.jobInfo + "\n\n")
	}
	if d := m.scope.Detail(); d != nil {
		for _, e := range dashboard.RecentLogs(d.Tasks) {
			b.WriteString(fmt.Sprintf("#%d %s [%s] attempt %d exit %s\n",
				e.TaskID, e.Name, e.Status, e.Attempt, orDash(e.ExitCode)))
			b.WriteString(labelStyle.Render("$ "+e.Command) + "\n")
			if e.Stdout != "" {
				b.WriteString(e.Stdout + "\n")
			}
			if e.Stderr != "" {
				b.WriteString(errorStyle.Render(e.Stderr) + "\n")
			}
			b.WriteString("\n")
		}
	}
	m.logs.SetContent(b.String())
}

// View renders the detail screen.
func (m *DetailModel) View(canMutate bool) string {
	// A failed fetch replaces the whole view until the next success.
	if err := m.scope.Err(); err != nil {
		return errorStyle.Render("Error: "+err.Error()) + "\n"
	}
	d := m.scope.Detail()
	if d == nil {
		return "\n  Loading plan...\n"
	}

	var b strings.Builder
	p := d.Plan
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Plan #%d %s", p.ID, p.Name)) + "\n")
	b.WriteString(fmt.Sprintf("  %s  %s %s  %s %d  %s %s\n",
		formatPlanStatus(p.Status),
		labelStyle.Render("target"), p.TargetAddress,
		labelStyle.Render("concurrency"), p.MaxConcurrency,
		labelStyle.Render("by"), p.CreatedBy))
	if p.Description != "" {
		b.WriteString("  " + mutedStyle.Render(p.Description) + "\n")
	}

	pct := dashboard.Progress(d.Tasks)
	b.WriteString(fmt.Sprintf("  %s %d%% (%d/%d)\n",
		m.progress.ViewAs(float64(pct)/100), pct, dashboard.Terminal(d.Tasks), len(d.Tasks)))

	if task, ok := m.SelectedTask(); ok {
		b.WriteString("  " + labelStyle.Render(taskTimes(task)) + "\n")
	}
	b.WriteString(m.table.View() + "\n")
	b.WriteString(sectionStyle.Render("Recent output") + "\n")
	b.WriteString(panelStyle.Render(m.logs.View()) + "\n")

	actions := "s:start p:pause u:resume x:stop R:retry c:cancel"
	if canMutate {
		b.WriteString("  " + helpStyle.Render(actions+" i:job info"))
	} else {
		b.WriteString("  " + mutedStyle.Strikethrough(true).Render(actions) + " " + helpStyle.Render("(read-only) i:job info"))
	}
	return b.String()
}

func taskTimes(t models.Task) string {
	parts := []string{fmt.Sprintf("task #%d", t.ID)}
	if t.StartedAt != nil && !t.StartedAt.IsZero() {
		parts = append(parts, "started "+t.StartedAt.Local().Format("15:04:05"))
	}
	if t.EndedAt != nil && !t.EndedAt.IsZero() {
		parts = append(parts, "ended "+t.EndedAt.Local().Format("15:04:05"))
	}
	return strings.Join(parts, "  ")
}

func formatJobInfo(jobID string, raw json.RawMessage) string {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Sprintf("Job %s:\n%s", jobID, string(raw))
	}
	return fmt.Sprintf("Job %s:\n%s", jobID, out.String())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func detailFetchCmd(fetch func() dashboard.DetailResult) tea.Cmd {
	return func() tea.Msg {
		return detailResultMsg{result: fetch()}
	}
}
