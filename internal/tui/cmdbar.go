package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	cmdBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)
)

// CmdBarModel manages the command input bar
type CmdBarModel struct {
	input       textinput.Model
	focused     bool
	suggestions *Suggestions
}

// NewCmdBarModel creates a new command bar
func NewCmdBarModel() *CmdBarModel {
	ti := textinput.New()
	ti.Placeholder = "start | pause | retry <task> | job <id> | new | logout"
	ti.CharLimit = 256
	return &CmdBarModel{
		input:       ti,
		suggestions: NewSuggestions(),
	}
}

// Focus focuses the command bar
func (m *CmdBarModel) Focus() {
	m.focused = true
	m.input.Focus()
}

// Blur unfocuses the command bar
func (m *CmdBarModel) Blur() {
	m.focused = false
	m.input.Blur()
	m.input.SetValue("")
	m.suggestions.Update("")
}

// Focused reports whether the bar owns the keyboard.
func (m *CmdBarModel) Focused() bool { return m.focused }

// SetTasks offers ids as completions after "@".
func (m *CmdBarModel) SetTasks(ids []string) {
	m.suggestions.SetTasks(ids)
}

// Update handles a key while focused. It returns the submitted line when
// enter is pressed on input with no open suggestion.
func (m *CmdBarModel) Update(msg tea.Msg) (submitted string, cmd tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			m.Blur()
			return "", nil
		case "up":
			m.suggestions.Prev()
			return "", nil
		case "down":
			m.suggestions.Next()
			return "", nil
		case "tab":
			m.accept()
			return "", nil
		case "enter":
			if sel := m.suggestions.Selected(); sel != nil && sel.Text != lastWord(m.input.Value()) {
				m.accept()
				return "", nil
			}
			line := strings.TrimSpace(m.input.Value())
			m.Blur()
			return line, nil
		}
	}

	m.input, cmd = m.input.Update(msg)
	m.suggestions.Update(m.input.Value())
	return "", cmd
}

// accept replaces the word being typed with the selected suggestion.
func (m *CmdBarModel) accept() {
	selected := m.suggestions.Selected()
	if selected == nil {
		return
	}
	value := m.input.Value()
	head := ""
	if i := strings.LastIndex(value, " "); i >= 0 {
		head = value[:i+1]
	}
	m.input.SetValue(head + selected.Text + " ")
	m.input.CursorEnd()
	m.suggestions.Update("")
}

func lastWord(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	return words[len(words)-1]
}

// View renders the command bar
func (m *CmdBarModel) View(width int) string {
	if !m.focused {
		return cmdBarStyle.Render("Press : to enter a command")
	}
	view := cmdBarStyle.Render(promptStyle.Render(": ") + m.input.View())
	if m.suggestions.IsVisible() {
		view += "\n" + m.suggestions.Render(width)
	}
	return view
}

// parseCommand splits a command line into its verb and arguments. A leading
// "@" on an argument is dropped.
func parseCommand(line string) (string, []string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil
	}
	args := parts[1:]
	for i, a := range args {
		args[i] = strings.TrimPrefix(a, "@")
	}
	return strings.ToLower(parts[0]), args
}
