package tui

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/reprocess/internal/api"
	"github.com/fentz26/reprocess/internal/dashboard"
	"github.com/fentz26/reprocess/internal/devserver"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/fentz26/reprocess/internal/session"
)

// collectCmdMessages runs cmd and flattens batches. Commands that do not
// return promptly (timers, blocked subscriptions) are skipped.
func collectCmdMessages(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	select {
	case msg := <-done:
		return collectMessage(msg)
	case <-time.After(time.Second):
		return nil
	}
}

func collectMessage(msg tea.Msg) []tea.Msg {
	switch m := msg.(type) {
	case nil:
		return nil
	case tea.BatchMsg:
		var out []tea.Msg
		for _, sub := range m {
			out = append(out, collectCmdMessages(sub)...)
		}
		return out
	default:
		return []tea.Msg{m}
	}
}

// pump feeds every message cmd produces back into the app until the app
// stops producing work.
func pump(a *App, cmd tea.Cmd) {
	queue := collectCmdMessages(cmd)
	for i := 0; len(queue) > 0 && i < 200; i++ {
		msg := queue[0]
		queue = queue[1:]
		switch msg.(type) {
		case spinner.TickMsg, cursor.BlinkMsg:
			continue
		}
		_, next := a.Update(msg)
		queue = append(queue, collectCmdMessages(next)...)
	}
}

func keyRunes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }
func keyEnter() tea.KeyMsg        { return tea.KeyMsg{Type: tea.KeyEnter} }

// press sends each key and drains the resulting work. "enter", "esc" and
// "tab" are special keys; anything else is typed as runes.
func press(a *App, keys ...string) {
	for _, k := range keys {
		msg := keyRunes(k)
		switch k {
		case "enter":
			msg = keyEnter()
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		}
		_, cmd := a.Update(msg)
		pump(a, cmd)
	}
}

type testEnv struct {
	srv     *devserver.Server
	session *session.Store
	client  *api.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	srv := devserver.NewServer(devserver.Options{Seed: true})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
	})

	st, err := session.New(context.Background(), session.NewMemoryKV())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	client := api.NewClient(ts.URL,
		api.WithTokenSource(st),
		api.WithUnauthorizedHandler(st.Invalidate),
	)
	st.SetAuthenticator(client)
	return &testEnv{srv: srv, session: st, client: client}
}

func (e *testEnv) app(t *testing.T) *App {
	t.Helper()
	a := New(Deps{Session: e.session, Client: e.client})
	t.Cleanup(a.Close)
	pump(a, a.Init())
	return a
}

func (e *testEnv) signIn(t *testing.T, username, password string) {
	t.Helper()
	if _, err := e.session.Login(context.Background(), username, password); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
}

func TestApp_LoginThenListsPlans(t *testing.T) {
	env := newTestEnv(t)
	a := env.app(t)
	if a.mode != modeLogin {
		t.Fatalf("Expected login mode, got %v", a.mode)
	}

	press(a, "admin", "enter", "admin123", "enter")

	if a.mode != modeList {
		t.Fatalf("Expected list mode after sign-in, got %v (login error %q)", a.mode, a.login.err)
	}
	if got := env.session.CurrentRole(); got != models.RoleAdmin {
		t.Errorf("Expected admin role, got %q", got)
	}
	plans := a.list.Scope().Plans()
	if len(plans) != 1 || plans[0].Name != "Sample Plan" {
		t.Fatalf("Expected the sample plan, got %+v", plans)
	}
	if !strings.Contains(a.View(), "Sample Plan") {
		t.Error("Expected plan name in view")
	}
}

func TestApp_LoginRejectedShowsServerText(t *testing.T) {
	env := newTestEnv(t)
	a := env.app(t)

	press(a, "admin", "enter", "wrong", "enter")

	if a.mode != modeLogin {
		t.Fatalf("Expected to stay on login, got %v", a.mode)
	}
	if !strings.Contains(a.login.err, "Invalid credentials") {
		t.Errorf("Expected server text, got %q", a.login.err)
	}
}

func TestApp_RejectedTokenReturnsToLogin(t *testing.T) {
	env := newTestEnv(t)
	if err := env.session.Set(session.Session{Token: "stale", Role: models.RoleAdmin}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	a := env.app(t)

	if a.mode != modeLogin {
		t.Fatalf("Expected login mode after 401, got %v", a.mode)
	}
	if env.session.Read().Authenticated() {
		t.Error("Expected session to be cleared")
	}
	if !strings.Contains(a.login.err, "Session expired") {
		t.Errorf("Expected expiry notice, got %q", a.login.err)
	}
	if a.list != nil {
		t.Error("Expected list scope to be dropped")
	}
}

func TestApp_DetailActionRefetches(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "admin", "admin123")
	a := env.app(t)

	press(a, "enter")
	if a.mode != modeDetail || a.detail == nil {
		t.Fatalf("Expected detail mode, got %v", a.mode)
	}
	d := a.detail.Scope().Detail()
	if d == nil || len(d.Tasks) != 3 {
		t.Fatalf("Expected seeded plan with 3 tasks, got %+v", d)
	}

	press(a, "s")

	d = a.detail.Scope().Detail()
	if d.Plan.Status != models.PlanStatusRunning {
		t.Errorf("Expected RUNNING from re-fetch, got %s", d.Plan.Status)
	}
	if msg := a.detail.Message(); msg != "✓ start confirmed" {
		t.Errorf("Unexpected message %q", msg)
	}

	press(a, "esc")
	if a.mode != modeList || a.detail != nil {
		t.Fatalf("Expected back on list, got %v", a.mode)
	}
	if got := a.list.Scope().Plans()[0].Status; got != models.PlanStatusRunning {
		t.Errorf("Expected list refreshed to RUNNING, got %s", got)
	}
}

func TestApp_ViewerIsRefusedLocally(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "viewer", "viewer123")
	a := env.app(t)

	press(a, "enter", "s")

	if msg := a.detail.Message(); msg != "Error: "+dashboard.ErrForbidden.Error() {
		t.Errorf("Expected local refusal, got %q", msg)
	}
	if got := a.detail.Scope().Detail().Plan.Status; got == models.PlanStatusRunning {
		t.Error("Viewer action must not reach the backend")
	}
	if !strings.Contains(a.View(), "read-only") {
		t.Error("Expected read-only marker in view")
	}
}

func TestApp_CommandBarCancelsTask(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "admin", "admin123")
	a := env.app(t)
	press(a, "enter")

	press(a, ":", "cancel 2", "enter")

	if a.cmdbar.Focused() {
		t.Error("Expected command bar to blur after submit")
	}
	tasks := a.detail.Scope().Detail().Tasks
	if tasks[1].Status != models.TaskStatusCanceled {
		t.Errorf("Expected task 2 canceled, got %s", tasks[1].Status)
	}
}

func TestApp_CommandBarRequiresOpenPlan(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "admin", "admin123")
	a := env.app(t)

	press(a, ":", "stop", "enter")

	if a.message != "Open a plan first" {
		t.Errorf("Unexpected message %q", a.message)
	}
}

func TestApp_ComposerSubmitOpensNewPlan(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "admin", "admin123")
	a := env.app(t)

	press(a, "n")
	if a.mode != modeComposer {
		t.Fatalf("Expected composer mode, got %v", a.mode)
	}
	press(a, "S")

	if a.mode != modeDetail {
		t.Fatalf("Expected detail of created plan, got %v (error %q)", a.mode, a.composer.Composer().LastError())
	}
	if got := a.detail.Scope().PlanID(); got != 2 {
		t.Errorf("Expected plan 2, got %d", got)
	}
	if len(a.list.Scope().Plans()) != 2 {
		t.Errorf("Expected list to include the new plan, got %d plans", len(a.list.Scope().Plans()))
	}
}

func TestApp_ComposerRejectionKeepsDraft(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "viewer", "viewer123")
	a := env.app(t)

	press(a, "n", "a")
	press(a, "esc") // leave the task form
	press(a, "S")

	if a.mode != modeComposer {
		t.Fatalf("Expected to stay in composer, got %v", a.mode)
	}
	c := a.composer.Composer()
	if c.Len() != 2 {
		t.Errorf("Expected drafts retained, got %d", c.Len())
	}
	if c.LastError() != `{"detail":"Insufficient permissions"}` {
		t.Errorf("Expected server text, got %q", c.LastError())
	}
}

func TestApp_LogoutCommand(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t, "admin", "admin123")
	a := env.app(t)

	press(a, ":", "logout", "enter")

	if a.mode != modeLogin || env.session.Read().Authenticated() {
		t.Fatalf("Expected signed out, mode %v", a.mode)
	}
	if a.login.err != "Signed out." {
		t.Errorf("Unexpected notice %q", a.login.err)
	}
}
