// Package tui provides the interactive terminal UI for the reprocessing
// manager: sign-in, the plan list, the plan composer and the plan detail.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/reprocess/internal/api"
	"github.com/fentz26/reprocess/internal/composer"
	"github.com/fentz26/reprocess/internal/dashboard"
	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/metrics"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/fentz26/reprocess/internal/session"
)

type mode int

const (
	modeLogin mode = iota
	modeList
	modeComposer
	modeDetail
)

// Deps is what the UI runs against.
type Deps struct {
	Session *session.Store
	Client  *api.Client
	// Live is optional; without it views only refresh on demand and after
	// their own actions.
	Live    dashboard.LiveSource
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// App is the main TUI application model.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	deps   Deps
	logger *slog.Logger

	mode     mode
	width    int
	height   int
	login    *LoginModel
	list     *PlanListModel
	detail   *DetailModel
	composer *ComposerModel
	cmdbar   *CmdBarModel
	spinner  spinner.Model

	online  bool
	message string
}

// New creates a new TUI application.
func New(deps Deps) *App {
	ctx, cancel := context.WithCancel(context.Background())
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	a := &App{
		ctx:      ctx,
		cancel:   cancel,
		deps:     deps,
		logger:   logging.OrDiscard(deps.Logger).With("component", "tui"),
		login:    NewLoginModel(),
		composer: NewComposerModel(composer.New()),
		cmdbar:   NewCmdBarModel(),
		spinner:  sp,
		width:    100,
		height:   30,
	}
	if deps.Session.Read().Authenticated() {
		a.mode = modeList
	}
	return a
}

// Run starts the TUI application.
func (a *App) Run() error {
	defer a.Close()
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Close ends every open subscription.
func (a *App) Close() {
	a.closeDetail()
	if a.list != nil {
		a.list.Scope().Close()
		a.list = nil
	}
	a.cancel()
}

func (a *App) scopeOptions() dashboard.Options {
	opts := dashboard.Options{Logger: a.deps.Logger, Metrics: a.deps.Metrics}
	if a.deps.Live != nil {
		opts.Live = a.deps.Live
		opts.LiveURL = a.deps.Client.LiveURL
	}
	return opts
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick, a.checkHealth()}
	if a.mode == modeList {
		cmds = append(cmds, a.openList())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := a.update(msg)
	if a.mode != modeLogin && !a.deps.Session.Read().Authenticated() {
		// A 401 anywhere clears the session.
		a.toLogin("Session expired. Sign in again.")
		return a, nil
	}
	return a, cmd
}

func (a *App) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return tea.Quit
		}
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return cmd

	case healthMsg:
		a.online = msg.online
		return nil

	case loginResultMsg:
		cmd := a.login.Update(a.ctx, a.deps.Session, msg)
		if msg.err != nil {
			return cmd
		}
		a.logger.Info("signed in", "role", msg.session.Role)
		a.message = ""
		a.mode = modeList
		return tea.Batch(cmd, a.openList())

	case listResultMsg:
		if a.list != nil {
			a.list.Apply(msg.result)
		}
		return nil

	case detailResultMsg:
		if a.detail != nil && msg.result.ScopeID == a.detail.Scope().ID() {
			a.detail.Apply(msg.result)
		}
		return nil

	case liveMsg:
		return a.handleLive(msg)

	case actionResultMsg:
		if a.detail == nil || msg.result.ScopeID != a.detail.Scope().ID() {
			return nil
		}
		return a.detail.Update(a.ctx, msg)

	case jobInfoMsg:
		if a.detail != nil {
			return a.detail.Update(a.ctx, msg)
		}
		return nil

	case submitResultMsg:
		plan := a.composer.Finish(msg.result)
		if plan == nil {
			return nil
		}
		a.message = fmt.Sprintf("✓ Created plan #%d", plan.ID)
		return tea.Batch(a.refreshList(), a.openDetail(plan.ID))
	}

	// Anything else (cursor blinks, form internals) belongs to the active view.
	switch a.mode {
	case modeLogin:
		return a.login.Update(a.ctx, a.deps.Session, msg)
	case modeComposer:
		return a.composer.Update(a.ctx, a.deps.Client, msg)
	}
	return nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if a.cmdbar.Focused() {
		line, cmd := a.cmdbar.Update(msg)
		if line != "" {
			return tea.Batch(cmd, a.execute(line))
		}
		return cmd
	}

	switch a.mode {
	case modeLogin:
		return a.login.Update(a.ctx, a.deps.Session, msg)

	case modeComposer:
		if msg.String() == "esc" && !a.composer.Editing() && !a.composer.Pending() {
			a.composer.Dismiss()
			a.mode = modeList
			return nil
		}
		return a.composer.Update(a.ctx, a.deps.Client, msg)

	case modeList:
		if a.list == nil {
			return nil
		}
		switch msg.String() {
		case ":":
			a.focusCmdBar()
			return nil
		case "q":
			return tea.Quit
		case "n":
			a.mode = modeComposer
			return nil
		case "r":
			return tea.Batch(a.refreshList(), a.checkHealth())
		case "enter":
			if p, ok := a.list.Selected(); ok {
				return a.openDetail(p.ID)
			}
			return nil
		}
		return a.list.Update(msg)

	case modeDetail:
		switch msg.String() {
		case ":":
			a.focusCmdBar()
			return nil
		case "esc":
			if id := a.detail.Scope().PlanID(); a.list != nil {
				a.list.Select(id)
			}
			a.closeDetail()
			a.mode = modeList
			a.message = ""
			// Without live notifications the list may be stale.
			return a.refreshList()
		case "r":
			return a.detail.Refresh(a.ctx)
		}
		return a.detail.Update(a.ctx, msg)
	}
	return nil
}

func (a *App) handleLive(msg liveMsg) tea.Cmd {
	switch {
	case a.list != nil && msg.scopeID == a.list.Scope().ID():
		if !msg.ok {
			return nil
		}
		var cmds []tea.Cmd
		if a.list.Scope().HandleMessage(msg.msg) {
			cmds = append(cmds, a.list.Refresh(a.ctx))
		}
		return tea.Batch(append(cmds, waitForLive(msg.scopeID, a.list.Scope().Messages()))...)

	case a.detail != nil && msg.scopeID == a.detail.Scope().ID():
		if !msg.ok {
			return nil
		}
		var cmds []tea.Cmd
		if a.detail.Scope().HandleMessage(msg.msg) {
			cmds = append(cmds, a.detail.Refresh(a.ctx))
		}
		return tea.Batch(append(cmds, waitForLive(msg.scopeID, a.detail.Scope().Messages()))...)
	}
	// Message from a scope that has since closed.
	return nil
}

// execute runs a command bar line.
func (a *App) execute(line string) tea.Cmd {
	name, args := parseCommand(line)
	switch name {
	case "":
		return nil
	case "q", "quit", "exit":
		return tea.Quit
	case "refresh":
		if a.mode == modeDetail {
			return a.detail.Refresh(a.ctx)
		}
		return tea.Batch(a.refreshList(), a.checkHealth())
	case "new":
		a.closeDetail()
		a.mode = modeComposer
		return nil
	case "open":
		if len(args) < 1 {
			a.message = "Usage: open <plan id>"
			return nil
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			a.message = "Error: invalid plan id " + args[0]
			return nil
		}
		return a.openDetail(id)
	case "logout":
		if err := a.deps.Session.Logout(); err != nil {
			a.message = "Error: " + err.Error()
			return nil
		}
		a.toLogin("Signed out.")
		return nil
	}

	if a.detail == nil {
		a.message = "Open a plan first"
		return nil
	}
	switch name {
	case "start", "pause", "resume", "stop":
		return a.detail.startPlanAction(a.ctx, models.PlanAction(name))
	case "retry", "cancel":
		id, ok := a.taskArg(args)
		if !ok {
			a.message = fmt.Sprintf("Usage: %s <task id>", name)
			return nil
		}
		return a.detail.startTaskAction(a.ctx, id, models.TaskAction(name))
	case "job":
		jobID := ""
		if len(args) > 0 {
			jobID = args[0]
		} else if t, ok := a.detail.SelectedTask(); ok {
			jobID = t.JobID
		}
		if jobID == "" {
			a.message = "Usage: job <job id>"
			return nil
		}
		return a.detail.lookupJob(a.ctx, jobID)
	}
	a.message = fmt.Sprintf("Unknown command: %s", name)
	return nil
}

// taskArg resolves a task id from args, falling back to the selected task.
func (a *App) taskArg(args []string) (int64, bool) {
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		return id, err == nil
	}
	t, ok := a.detail.SelectedTask()
	return t.ID, ok
}

func (a *App) focusCmdBar() {
	a.message = ""
	if a.detail != nil {
		if d := a.detail.Scope().Detail(); d != nil {
			ids := make([]string, len(d.Tasks))
			for i, t := range d.Tasks {
				ids[i] = strconv.FormatInt(t.ID, 10)
			}
			a.cmdbar.SetTasks(ids)
		}
	}
	a.cmdbar.Focus()
}

// --- scopes ---

func (a *App) openList() tea.Cmd {
	if a.list != nil {
		return a.list.Refresh(a.ctx)
	}
	a.list = NewPlanListModel(dashboard.NewListScope(a.deps.Client, a.scopeOptions()))
	a.resize()
	return a.list.Open(a.ctx)
}

func (a *App) refreshList() tea.Cmd {
	if a.list == nil {
		return nil
	}
	return a.list.Refresh(a.ctx)
}

func (a *App) openDetail(planID int64) tea.Cmd {
	a.closeDetail()
	opts := a.scopeOptions()
	scope := dashboard.NewDetailScope(a.deps.Client, planID, opts)
	a.detail = NewDetailModel(scope, dashboard.NewDispatcher(a.deps.Client, scope, a.deps.Session, opts))
	a.mode = modeDetail
	a.resize()
	return a.detail.Open(a.ctx)
}

func (a *App) closeDetail() {
	if a.detail != nil {
		a.detail.Scope().Close()
		a.detail = nil
	}
}

// toLogin drops every scope and shows the sign-in form.
func (a *App) toLogin(msg string) {
	a.closeDetail()
	if a.list != nil {
		a.list.Scope().Close()
		a.list = nil
	}
	a.composer.Dismiss()
	a.cmdbar.Blur()
	a.message = ""
	a.login.Reset(msg)
	a.mode = modeLogin
}

func (a *App) checkHealth() tea.Cmd {
	ctx, client := a.ctx, a.deps.Client
	return func() tea.Msg {
		ok, err := client.Health(ctx)
		return healthMsg{online: err == nil && ok}
	}
}

func (a *App) resize() {
	content := max(a.height-8, 5)
	if a.list != nil {
		a.list.SetSize(a.width, content-2)
	}
	if a.detail != nil {
		a.detail.SetSize(a.width-4, content)
	}
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	// Header with backend and user status
	backend := successStyle.Render("● API")
	if !a.online {
		backend = errorStyle.Render("○ API")
	}
	user := mutedStyle.Render("○ not signed in")
	if sess := a.deps.Session.Read(); sess.Authenticated() {
		user = successStyle.Render(fmt.Sprintf("● %s", sess.Role))
	}
	header := titleStyle.Render("Oozie Reprocessing")
	header += "  " + backend + " " + mutedStyle.Render(a.deps.Client.BaseURL())
	header += "  " + user
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", a.width) + "\n")

	canMutate := dashboard.CanMutate(a.deps.Session.CurrentRole())
	switch a.mode {
	case modeLogin:
		b.WriteString(a.login.View())
	case modeList:
		if a.list != nil {
			if !a.list.Scope().Loaded() && a.list.Scope().Err() == nil {
				b.WriteString("  " + a.spinner.View() + " Loading plans...\n")
			} else {
				b.WriteString(a.list.View())
			}
		}
	case modeComposer:
		b.WriteString(a.composer.View())
	case modeDetail:
		if a.detail != nil {
			b.WriteString(a.detail.View(canMutate))
		}
	}

	// Message bar
	message := a.message
	if message == "" && a.mode == modeDetail && a.detail != nil {
		message = a.detail.Message()
	}
	if message != "" {
		style := successStyle
		if strings.HasPrefix(message, "Error") {
			style = errorStyle
		}
		b.WriteString("\n" + style.Render(message))
	}
	b.WriteString("\n")

	if a.mode == modeList || a.mode == modeDetail {
		b.WriteString(a.cmdbar.View(a.width) + "\n")
	}

	b.WriteString(statusBarStyle.Width(a.width).Render(a.statusLine()))
	return b.String()
}

func (a *App) statusLine() string {
	var parts []string
	switch a.mode {
	case modeLogin:
		parts = append(parts, "Tab:switch | Enter:sign in | Ctrl+C:quit")
	case modeList:
		if a.list != nil {
			parts = append(parts, formatLiveState(a.list.Scope().LiveState()))
		}
		parts = append(parts, "↑↓:nav | Enter:open | n:new plan | r:refresh | ::command | q:quit")
	case modeComposer:
		parts = append(parts, "e:plan | a:add task | Enter:edit | d:remove | S:submit | Esc:discard")
	case modeDetail:
		if a.detail != nil {
			parts = append(parts, formatLiveState(a.detail.Scope().LiveState()))
		}
		parts = append(parts, "↑↓:nav | r:refresh | ::command | Esc:back")
	}
	return strings.Join(parts, " | ")
}
