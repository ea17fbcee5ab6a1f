package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/reprocess/internal/session"
)

// LoginModel collects credentials and exchanges them for a session.
type LoginModel struct {
	username textinput.Model
	password textinput.Model
	focus    int
	err      string
	pending  bool
}

// NewLoginModel creates an empty login form.
func NewLoginModel() *LoginModel {
	user := textinput.New()
	user.Placeholder = "username"
	user.CharLimit = 128
	user.Focus()

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.CharLimit = 128
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	return &LoginModel{username: user, password: pass}
}

// Reset clears the password and shows msg, if any.
func (m *LoginModel) Reset(msg string) {
	m.password.SetValue("")
	m.err = msg
	m.pending = false
	m.setFocus(0)
}

func (m *LoginModel) setFocus(i int) {
	m.focus = i
	if i == 0 {
		m.username.Focus()
		m.password.Blur()
	} else {
		m.username.Blur()
		m.password.Focus()
	}
}

// Update handles key input. It returns a command when the form is submitted.
func (m *LoginModel) Update(ctx context.Context, st *session.Store, msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "tab", "shift+tab", "up", "down":
			m.setFocus(1 - m.focus)
			return nil
		case "enter":
			if m.focus == 0 {
				m.setFocus(1)
				return nil
			}
			return m.submit(ctx, st)
		}
	case loginResultMsg:
		m.pending = false
		if msg.err != nil {
			m.err = msg.err.Error()
			m.password.SetValue("")
			return nil
		}
		m.err = ""
		m.password.SetValue("")
		return nil
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return cmd
}

func (m *LoginModel) submit(ctx context.Context, st *session.Store) tea.Cmd {
	username := strings.TrimSpace(m.username.Value())
	password := m.password.Value()
	if username == "" || password == "" {
		m.err = "username and password are required"
		return nil
	}
	m.pending = true
	m.err = ""
	return func() tea.Msg {
		sess, err := st.Login(ctx, username, password)
		return loginResultMsg{session: sess, err: err}
	}
}

// View renders the form.
func (m *LoginModel) View() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Sign in") + "\n\n")
	b.WriteString("  " + labelStyle.Render("Username") + "\n")
	b.WriteString("  " + inputBoxStyle.Render(m.username.View()) + "\n")
	b.WriteString("  " + labelStyle.Render("Password") + "\n")
	b.WriteString("  " + inputBoxStyle.Render(m.password.View()) + "\n\n")
	switch {
	case m.pending:
		b.WriteString("  " + mutedStyle.Render("Signing in...") + "\n")
	case m.err != "":
		b.WriteString("  " + errorStyle.Render(m.err) + "\n")
	}
	b.WriteString("\n  " + helpStyle.Render("Tab: switch field | Enter: sign in | Ctrl+C: quit") + "\n")
	return b.String()
}
