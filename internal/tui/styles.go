package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/reprocess/internal/dashboard"
	"github.com/fentz26/reprocess/internal/models"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	itemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor).
			MarginTop(1)

	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
)

func formatPlanStatus(status models.PlanStatus) string {
	switch status {
	case models.PlanStatusDraft, models.PlanStatusCreated:
		return mutedStyle.Render("○ " + string(status))
	case models.PlanStatusRunning:
		return lipgloss.NewStyle().Foreground(primaryColor).Render("◑ " + string(status))
	case models.PlanStatusPaused:
		return warningStyle.Render("◐ " + string(status))
	case models.PlanStatusCompleted:
		return successStyle.Render("● " + string(status))
	case models.PlanStatusFailed, models.PlanStatusStopped:
		return errorStyle.Render("✗ " + string(status))
	default:
		return string(status)
	}
}

func formatTaskStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusPending:
		return "○ " + string(status)
	case models.TaskStatusRunning:
		return "◑ " + string(status)
	case models.TaskStatusSuccess:
		return "● " + string(status)
	case models.TaskStatusFailed:
		return "✗ " + string(status)
	case models.TaskStatusCanceled, models.TaskStatusSkipped:
		return "- " + string(status)
	default:
		return string(status)
	}
}

func formatLiveState(state dashboard.LiveState) string {
	label := "live: " + string(state)
	switch state {
	case dashboard.LiveConnected:
		return successStyle.Render("● " + label)
	case dashboard.LiveConnecting, dashboard.LiveReconnecting:
		return warningStyle.Render("◐ " + label)
	case dashboard.LiveClosed:
		return errorStyle.Render("○ " + label)
	default:
		return mutedStyle.Render("○ " + label)
	}
}
