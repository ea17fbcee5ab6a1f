package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Suggestions provides autocomplete for the command bar
type Suggestions struct {
	tasks       []SuggestionItem
	filtered    []SuggestionItem
	selectedIdx int
	visible     bool
	header      string
}

// SuggestionItem represents a single autocomplete suggestion
type SuggestionItem struct {
	Text        string
	Description string
	Type        string // "command" or "task"
}

var commandSuggestions = []SuggestionItem{
	{Text: "start", Description: "Start the open plan", Type: "command"},
	{Text: "pause", Description: "Pause the open plan", Type: "command"},
	{Text: "resume", Description: "Resume the open plan", Type: "command"},
	{Text: "stop", Description: "Stop the open plan and cancel pending tasks", Type: "command"},
	{Text: "retry", Description: "Retry a task (retry @<id>)", Type: "command"},
	{Text: "cancel", Description: "Cancel a task (cancel @<id>)", Type: "command"},
	{Text: "job", Description: "Look up a job id", Type: "command"},
	{Text: "open", Description: "Open a plan by id", Type: "command"},
	{Text: "new", Description: "Compose a new plan", Type: "command"},
	{Text: "refresh", Description: "Re-fetch the current view", Type: "command"},
	{Text: "logout", Description: "Sign out", Type: "command"},
	{Text: "quit", Description: "Exit", Type: "command"},
}

// NewSuggestions creates a new suggestions handler
func NewSuggestions() *Suggestions {
	return &Suggestions{}
}

// Update recomputes suggestions for the current input. The first word
// completes against commands; a later word starting with "@" completes
// against task ids.
func (s *Suggestions) Update(input string) {
	s.selectedIdx = 0
	if strings.TrimSpace(input) == "" {
		s.visible = false
		s.filtered = nil
		return
	}

	words := strings.Fields(input)
	trailingSpace := strings.HasSuffix(input, " ")
	switch {
	case len(words) == 1 && !trailingSpace:
		s.header = "Commands"
		s.filtered = filterItems(commandSuggestions, strings.ToLower(words[0]))
	case !trailingSpace && strings.HasPrefix(words[len(words)-1], "@"):
		s.header = "Tasks"
		s.filtered = filterItems(s.tasks, strings.TrimPrefix(words[len(words)-1], "@"))
	default:
		s.filtered = nil
	}
	s.visible = len(s.filtered) > 0
}

// SetTasks updates the task suggestions
func (s *Suggestions) SetTasks(tasks []string) {
	s.tasks = make([]SuggestionItem, len(tasks))
	for i, task := range tasks {
		s.tasks[i] = SuggestionItem{
			Text:        "@" + task,
			Description: "Reference this task",
			Type:        "task",
		}
	}
}

func filterItems(items []SuggestionItem, query string) []SuggestionItem {
	var out []SuggestionItem
	for _, item := range items {
		if strings.Contains(strings.ToLower(strings.TrimPrefix(item.Text, "@")), query) {
			out = append(out, item)
		}
	}
	return out
}

// Next moves to the next suggestion
func (s *Suggestions) Next() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx = (s.selectedIdx + 1) % len(s.filtered)
}

// Prev moves to the previous suggestion
func (s *Suggestions) Prev() {
	if len(s.filtered) == 0 {
		return
	}
	s.selectedIdx--
	if s.selectedIdx < 0 {
		s.selectedIdx = len(s.filtered) - 1
	}
}

// Selected returns the currently selected suggestion
func (s *Suggestions) Selected() *SuggestionItem {
	if !s.visible || len(s.filtered) == 0 || s.selectedIdx >= len(s.filtered) {
		return nil
	}
	return &s.filtered[s.selectedIdx]
}

// IsVisible returns whether suggestions are currently visible
func (s *Suggestions) IsVisible() bool {
	return s.visible && len(s.filtered) > 0
}

// Render renders the suggestions dropdown
func (s *Suggestions) Render(width int) string {
	if !s.IsVisible() {
		return ""
	}

	var b strings.Builder

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(secondaryColor).
		Padding(0, 1).
		Width(max(width-4, 20))

	selected := lipgloss.NewStyle().
		Background(primaryColor).
		Foreground(fgColor).
		Bold(true)

	item := lipgloss.NewStyle().Foreground(fgColor)
	desc := lipgloss.NewStyle().Foreground(mutedColor).Italic(true)

	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Render(s.header))
	b.WriteString("\n")

	// Show max 5 suggestions
	maxVisible := 5
	for i, it := range s.filtered {
		if i >= maxVisible {
			b.WriteString(desc.Render(fmt.Sprintf("  ... and %d more", len(s.filtered)-maxVisible)))
			break
		}

		var line string
		if i == s.selectedIdx {
			line = selected.Render("▶ " + it.Text)
			if it.Description != "" {
				line += " " + selected.Render(it.Description)
			}
		} else {
			line = item.Render("  " + it.Text)
			if it.Description != "" {
				line += " " + desc.Render(it.Description)
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return boxStyle.Render(b.String())
}
