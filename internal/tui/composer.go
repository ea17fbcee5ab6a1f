package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/fentz26/reprocess/internal/composer"
	"github.com/fentz26/reprocess/internal/models"
)

// ComposerModel edits a plan and its task drafts. Fields are edited in huh
// forms; the overview lists drafts and advisory validation messages.
type ComposerModel struct {
	c        *composer.Composer
	selected int

	form    *huh.Form
	apply   func() error
	pending bool
	message string
}

// NewComposerModel wraps c.
func NewComposerModel(c *composer.Composer) *ComposerModel {
	return &ComposerModel{c: c}
}

// Composer returns the wrapped composer.
func (m *ComposerModel) Composer() *composer.Composer { return m.c }

// Pending reports whether a submission is in flight.
func (m *ComposerModel) Pending() bool { return m.pending }

// Editing reports whether a form currently owns the keyboard.
func (m *ComposerModel) Editing() bool { return m.form != nil }

// Dismiss discards all input.
func (m *ComposerModel) Dismiss() {
	m.c.Reset()
	m.form = nil
	m.apply = nil
	m.selected = 0
	m.message = ""
	m.pending = false
}

// Update handles overview keys, or forwards to the active form.
func (m *ComposerModel) Update(ctx context.Context, creator composer.PlanCreator, msg tea.Msg) tea.Cmd {
	if m.form != nil {
		return m.updateForm(msg)
	}

	if key, ok := msg.(tea.KeyMsg); ok && !m.pending {
		switch key.String() {
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < m.c.Len()-1 {
				m.selected++
			}
		case "e":
			return m.editPlan()
		case "a":
			m.selected = m.c.AddTask()
			return m.editTask(m.selected)
		case "enter":
			if m.c.Len() > 0 {
				return m.editTask(m.selected)
			}
		case "d":
			if m.c.Len() > 0 {
				m.c.RemoveTask(m.selected)
				if m.selected >= m.c.Len() && m.selected > 0 {
					m.selected--
				}
			}
		case "S":
			return m.submit(ctx, creator)
		}
	}
	return nil
}

// Finish applies a submission result and returns the created plan, or nil
// when the backend rejected it.
func (m *ComposerModel) Finish(r composer.SubmitResult) *models.Plan {
	m.pending = false
	m.message = ""
	plan, err := m.c.FinishSubmit(r)
	if err != nil {
		return nil
	}
	m.selected = 0
	return plan
}

func (m *ComposerModel) updateForm(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.form = nil
		m.apply = nil
		m.message = "Edit cancelled"
		return nil
	}

	model, cmd := m.form.Update(msg)
	if f, ok := model.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		if err := m.apply(); err != nil {
			m.message = "Error: " + err.Error()
		} else {
			m.message = ""
		}
		m.form = nil
		m.apply = nil
		return nil
	case huh.StateAborted:
		m.form = nil
		m.apply = nil
		return nil
	}
	return cmd
}

func (m *ComposerModel) submit(ctx context.Context, creator composer.PlanCreator) tea.Cmd {
	if m.pending {
		return nil
	}
	m.pending = true
	m.message = "Submitting..."
	run := m.c.StartSubmit(ctx, creator)
	return func() tea.Msg {
		return submitResultMsg{result: run()}
	}
}

// --- forms ---

type planFormValues struct {
	name        string
	description string
	target      string
	concurrency string
	alternate   bool
}

func (m *ComposerModel) editPlan() tea.Cmd {
	v := &planFormValues{
		name:        m.c.Name,
		description: m.c.Description,
		target:      m.c.TargetAddress,
		concurrency: strconv.Itoa(m.c.MaxConcurrency),
		alternate:   m.c.UseAlternateProtocol,
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title(composer.FieldPlanName.Label()).Value(&v.name),
			huh.NewInput().Title(composer.FieldDescription.Label()).Value(&v.description),
			huh.NewInput().Title(composer.FieldTargetAddress.Label()).Value(&v.target),
			huh.NewInput().Title(composer.FieldMaxConcurrency.Label()).Value(&v.concurrency).
				Validate(validateConcurrency),
			huh.NewConfirm().Title(composer.FieldUseAlternateProtocol.Label()).Value(&v.alternate),
		).Title("Plan"),
	).WithShowHelp(true)

	m.apply = func() error {
		return errors.Join(
			m.c.SetPlanField(composer.FieldPlanName, v.name),
			m.c.SetPlanField(composer.FieldDescription, v.description),
			m.c.SetPlanField(composer.FieldTargetAddress, v.target),
			m.c.SetPlanField(composer.FieldMaxConcurrency, v.concurrency),
			m.c.SetPlanField(composer.FieldUseAlternateProtocol, strconv.FormatBool(v.alternate)),
		)
	}
	return m.form.Init()
}

type taskFormValues struct {
	name  string
	typ   string
	jobID string

	failNodesOnly bool
	skipNodes     string

	action, date, coordName, props string
	refresh, failed                bool
}

func newTaskFormValues(d composer.Draft) *taskFormValues {
	window := d
	window.Type = models.TaskTypeCoordinator
	return &taskFormValues{
		name:          d.Name,
		typ:           string(d.Type),
		jobID:         d.JobID,
		failNodesOnly: d.Workflow.FailNodesOnly,
		skipNodes:     d.Workflow.SkipNodes.String(),
		action:        d.Window.Action,
		date:          d.Window.Date,
		coordName:     d.Window.CoordinatorName,
		props:         window.Value(composer.FieldExtraProperties),
		refresh:       d.Window.Refresh,
		failed:        d.Failed,
	}
}

// updates lists the field writes for the chosen type, type first so the
// type-specific fields land on the right variant.
func (v *taskFormValues) updates() [][2]string {
	out := [][2]string{
		{string(composer.FieldName), v.name},
		{string(composer.FieldJobID), v.jobID},
		{string(composer.FieldType), v.typ},
	}
	switch models.TaskType(v.typ) {
	case models.TaskTypeWorkflow:
		out = append(out,
			[2]string{string(composer.FieldFailNodesOnly), strconv.FormatBool(v.failNodesOnly)},
			[2]string{string(composer.FieldSkipNodes), v.skipNodes},
		)
	case models.TaskTypeCoordinator, models.TaskTypeBundle:
		out = append(out,
			[2]string{string(composer.FieldAction), v.action},
			[2]string{string(composer.FieldDate), v.date},
			[2]string{string(composer.FieldCoordinatorName), v.coordName},
			[2]string{string(composer.FieldRefresh), strconv.FormatBool(v.refresh)},
			[2]string{string(composer.FieldExtraProperties), v.props},
		)
		if models.TaskType(v.typ) == models.TaskTypeCoordinator {
			out = append(out, [2]string{string(composer.FieldFailed), strconv.FormatBool(v.failed)})
		}
	}
	return out
}

func (m *ComposerModel) editTask(index int) tea.Cmd {
	v := newTaskFormValues(m.c.Draft(index))
	is := func(t models.TaskType) func() bool {
		return func() bool { return models.TaskType(v.typ) != t }
	}

	typeOptions := make([]huh.Option[string], len(models.TaskTypes))
	for i, t := range models.TaskTypes {
		typeOptions[i] = huh.NewOption(string(t), string(t))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title(composer.FieldName.Label()).Value(&v.name),
			huh.NewSelect[string]().Title(composer.FieldType.Label()).Options(typeOptions...).Value(&v.typ),
			huh.NewInput().Title(composer.FieldJobID.Label()).Value(&v.jobID),
		).Title(fmt.Sprintf("Task %d", index+1)),
		huh.NewGroup(
			huh.NewConfirm().Title(composer.FieldFailNodesOnly.Label()).Value(&v.failNodesOnly),
			huh.NewInput().Title(composer.FieldSkipNodes.Label()).Value(&v.skipNodes),
		).Title("Workflow rerun").WithHideFunc(is(models.TaskTypeWorkflow)),
		huh.NewGroup(
			huh.NewInput().Title(composer.FieldAction.Label()).Value(&v.action),
			huh.NewInput().Title(composer.FieldDate.Label()).Value(&v.date),
			huh.NewInput().Title(composer.FieldCoordinatorName.Label()).Value(&v.coordName),
			huh.NewConfirm().Title(composer.FieldRefresh.Label()).Value(&v.refresh),
			huh.NewInput().Title(composer.FieldExtraProperties.Label()).Value(&v.props),
		).Title("Rerun window").WithHideFunc(func() bool {
			return models.TaskType(v.typ) == models.TaskTypeWorkflow
		}),
		huh.NewGroup(
			huh.NewConfirm().Title(composer.FieldFailed.Label()).Value(&v.failed),
		).Title("Coordinator rerun").WithHideFunc(is(models.TaskTypeCoordinator)),
	).WithShowHelp(true)

	m.apply = func() error {
		return applyTaskUpdates(m.c, index, v.updates())
	}
	return m.form.Init()
}

// applyTaskUpdates writes every update to a scratch copy first so a bad
// value leaves the draft untouched.
func applyTaskUpdates(c *composer.Composer, index int, updates [][2]string) error {
	scratch := composer.New()
	scratch.ReplaceTask(0, c.Draft(index))
	for _, u := range updates {
		if err := scratch.UpdateTask(0, composer.Field(u[0]), u[1]); err != nil {
			return err
		}
	}
	c.ReplaceTask(index, scratch.Draft(0))
	return nil
}

func validateConcurrency(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < composer.MinConcurrency || n > composer.MaxConcurrency {
		return fmt.Errorf("must be between %d and %d", composer.MinConcurrency, composer.MaxConcurrency)
	}
	return nil
}

// --- view ---

// View renders the overview or the active form.
func (m *ComposerModel) View() string {
	if m.form != nil {
		return m.form.View() + "\n" + helpStyle.Render("  Esc: cancel edit")
	}

	var b strings.Builder
	b.WriteString(sectionStyle.Render("New plan") + "\n")
	b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Name:"), m.c.Name))
	if m.c.Description != "" {
		b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Description:"), m.c.Description))
	}
	b.WriteString(fmt.Sprintf("  %s %s\n", labelStyle.Render("Target:"), m.c.TargetAddress))
	b.WriteString(fmt.Sprintf("  %s %d  %s %t\n",
		labelStyle.Render("Concurrency:"), m.c.MaxConcurrency,
		labelStyle.Render("REST protocol:"), m.c.UseAlternateProtocol))

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Tasks (%d)", m.c.Len())) + "\n")
	for i, d := range m.c.Drafts() {
		line := fmt.Sprintf("%-20s %-11s %s  %s", d.Name, d.Type, d.JobID, draftSummary(d))
		if i == m.selected {
			b.WriteString(selectedStyle.Render("▶ "+line) + "\n")
		} else {
			b.WriteString(itemStyle.Render("  "+line) + "\n")
		}
	}
	if m.c.Len() == 0 {
		b.WriteString("  " + mutedStyle.Render("No tasks. Press a to add one.") + "\n")
	}

	if problems := m.c.Validate(); len(problems) > 0 {
		b.WriteString("\n")
		for _, p := range problems {
			b.WriteString("  " + warningStyle.Render("! "+p) + "\n")
		}
	}
	if err := m.c.LastError(); err != "" {
		b.WriteString("\n  " + errorStyle.Render("Error: "+err) + "\n")
	}
	if m.message != "" {
		b.WriteString("\n  " + mutedStyle.Render(m.message) + "\n")
	}
	return b.String()
}

func draftSummary(d composer.Draft) string {
	var parts []string
	for _, f := range append(composer.VisibleFields(d.Type), composer.RerunFlags(d.Type)...) {
		v := d.Value(f)
		if v == "" || v == "false" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", f, v))
	}
	return mutedStyle.Render(strings.Join(parts, " "))
}
